package collection

import (
	"context"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/logging"
)

// WatchLimitHint is logged when the native watcher runs out of watches.
const WatchLimitHint = "echo fs.inotify.max_user_watches=524288 | sudo tee -a /etc/sysctl.conf && sudo sysctl -p"

// ResourceLimitGuard decides whether a watcher error restarts the watch in
// polling mode. It trips at most once per watch session: the OS reports
// one error per refused path, and only the first may restart.
type ResourceLimitGuard struct {
	tripped bool
}

// Trip reports whether err should trigger a polling restart, and marks the
// guard used when it does.
func (g *ResourceLimitGuard) Trip(err error, polling bool) bool {
	if g.tripped || polling || !errors.IsResourceLimit(err) {
		return false
	}
	g.tripped = true
	return true
}

// Tripped reports whether a restart was already issued.
func (g *ResourceLimitGuard) Tripped() bool {
	return g.tripped
}

func logWatchLimit(ctx context.Context, logger logging.Logger, err error, root string) {
	logger.Error(ctx, err, "Too many files to watch natively, switching to polling. To raise the limit run: "+WatchLimitHint,
		"root", root)
}
