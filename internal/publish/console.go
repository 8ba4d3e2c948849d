package publish

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/conneroisu/bruwatch/internal/types"
)

// ConsoleSink prints one line per message. Colors are used only when the
// output is a terminal.
type ConsoleSink struct {
	mu     sync.Mutex
	out    io.Writer
	add    *color.Color
	change *color.Color
	remove *color.Color
	info   *color.Color
	fail   *color.Color
}

// NewConsoleSink writes to out, or to stdout when out is nil.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	useColor := false
	if out == nil {
		out = os.Stdout
		useColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return &ConsoleSink{
		out:    out,
		add:    mk(color.FgGreen),
		change: mk(color.FgYellow),
		remove: mk(color.FgRed),
		info:   mk(color.FgCyan),
		fail:   mk(color.FgRed, color.Bold),
	}
}

// Publish implements interfaces.Sink.
func (c *ConsoleSink) Publish(msg types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case *types.TreeUpdate:
		c.tree(m)
	case *types.LoadingStateUpdate:
		state := "loaded"
		if m.IsLoading {
			state = "loading"
		}
		c.info.Fprintf(c.out, "%-22s %s %s\n", "loading-state", m.CollectionUID, state)
	case *types.ProcessEnvUpdate:
		c.info.Fprintf(c.out, "%-22s %s %d variables\n", "process-env", m.CollectionUID, len(m.ProcessEnvVariables))
	case *types.BrunoConfigUpdate:
		name := ""
		if m.BrunoConfig != nil {
			name = m.BrunoConfig.Name
		}
		c.info.Fprintf(c.out, "%-22s %s %q\n", "bruno-config", m.CollectionUID, name)
	case *types.SnapshotHydration:
		env := ""
		if m.Snapshot != nil {
			env = m.Snapshot.SelectedEnvironment
		}
		c.info.Fprintf(c.out, "%-22s %s environment=%q\n", "hydrate-ui", m.CollectionUID, env)
	case *types.CommandResult:
		if m.OK {
			c.info.Fprintf(c.out, "%-22s %s ok\n", "command", m.Command)
		} else {
			c.fail.Fprintf(c.out, "%-22s %s %s\n", "command", m.Command, m.Error)
		}
	default:
		fmt.Fprintf(c.out, "%-22s\n", msg.Topic())
	}
}

func (c *ConsoleSink) tree(u *types.TreeUpdate) {
	col := c.change
	switch u.Kind {
	case types.UpdateAddFile, types.UpdateAddDir, types.UpdateAddEnvironmentFile:
		col = c.add
	case types.UpdateUnlink, types.UpdateUnlinkDir, types.UpdateUnlinkEnvironmentFile:
		col = c.remove
	}

	state := ""
	switch {
	case u.Error != nil:
		state = " error: " + u.Error.Message
		col = c.fail
	case u.Loading:
		state = " (loading)"
	case u.Partial:
		state = " (partial)"
	}
	col.Fprintf(c.out, "%-22s %s%s\n", u.Kind, u.Meta.Pathname, state)
}
