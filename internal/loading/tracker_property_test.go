//go:build property

package loading

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestTrackerProperties validates the loading indicator over arbitrary
// completion orders.
func TestTrackerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	properties.Property("N files emit one true and exactly one false", prop.ForAll(
		func(n int, early int, seed int64) bool {
			if early > n {
				early = n
			}
			tr := NewTracker()
			var emitted []bool
			record := func(e Effect) {
				if e.Publish {
					emitted = append(emitted, e.IsLoading)
				}
			}

			g, eff := tr.Start("c")
			record(eff)

			paths := make([]string, n)
			for i := range paths {
				paths[i] = fmt.Sprintf("/c/%d.bru", i)
				record(tr.AddPending("c", paths[i]))
			}
			rand.New(rand.NewSource(seed)).Shuffle(n, func(i, j int) {
				paths[i], paths[j] = paths[j], paths[i]
			})

			for _, p := range paths[:early] {
				record(tr.MarkProcessed("c", g, p))
				if !tr.IsLoading("c") {
					return false
				}
			}

			record(tr.CompleteDiscovery("c", g))

			for i, p := range paths[early:] {
				if !tr.IsLoading("c") {
					return false
				}
				record(tr.MarkProcessed("c", g, p))
				last := i == n-early-1
				if tr.IsLoading("c") == last {
					return false
				}
			}

			// Further completions never re-emit.
			for _, p := range paths {
				record(tr.MarkProcessed("c", g, p))
			}

			return len(emitted) == 2 && emitted[0] && !emitted[1] && !tr.IsLoading("c")
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
		gen.Int64(),
	))

	properties.Property("idle never holds pending paths", prop.ForAll(
		func(ops []int) bool {
			tr := NewTracker()
			g, _ := tr.Start("c")
			for _, op := range ops {
				path := fmt.Sprintf("/c/%d.bru", op%5)
				switch op % 3 {
				case 0:
					tr.AddPending("c", path)
				case 1:
					tr.MarkProcessed("c", g, path)
				case 2:
					tr.CompleteDiscovery("c", g)
				}
				s, _ := tr.State("c")
				if s.Phase() == PhaseIdle && len(s.Pending()) > 0 {
					return false
				}
				if s.Phase() == PhaseProcessing && len(s.Pending()) == 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
