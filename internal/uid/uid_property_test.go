//go:build property

package uid

import (
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func segment() gopter.Gen {
	return gen.AlphaString().SuchThat(func(s string) bool { return s != "" && len(s) < 20 })
}

// TestCacheProperties validates the identity laws of the uid cache
func TestCacheProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated GetOrCreate returns the same id", prop.ForAll(
		func(dir, name string, repeats int) bool {
			c := NewCache()
			p := filepath.Join("/root", dir, name+".bru")
			first := c.GetOrCreate(p)
			for i := 0; i < repeats; i++ {
				if c.GetOrCreate(p) != first {
					return false
				}
			}
			return true
		},
		segment(),
		segment(),
		gen.IntRange(1, 20),
	))

	properties.Property("move carries the id and the old path mints a new one", prop.ForAll(
		func(oldName, newName string) bool {
			if oldName == newName {
				return true
			}
			c := NewCache()
			oldP := filepath.Join("/root", oldName+".bru")
			newP := filepath.Join("/root", newName+".bru")

			id := c.GetOrCreate(oldP)
			c.Move(oldP, newP)

			if c.GetOrCreate(newP) != id {
				return false
			}
			return c.GetOrCreate(oldP) != id
		},
		segment(),
		segment(),
	))

	properties.Property("move tree keeps every id below the directory", prop.ForAll(
		func(names []string) bool {
			c := NewCache()
			want := make(map[string]string)
			for _, n := range names {
				want[n] = c.GetOrCreate(filepath.Join("/root/old", n+".bru"))
			}
			c.MoveTree("/root/old", "/root/new")
			for n, id := range want {
				got, ok := c.Lookup(filepath.Join("/root/new", n+".bru"))
				if !ok || got != id {
					return false
				}
			}
			return true
		},
		gen.SliceOf(segment()),
	))

	properties.TestingRun(t)
}
