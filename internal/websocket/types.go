package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Commands the UI may send.
const (
	CommandLoadLargeRequest = "load-large-request"
	CommandRenameItem       = "rename-item"
	CommandDeleteItem       = "delete-item"
)

// Command is an inbound request from the UI. Which fields are used depends
// on the command.
type Command struct {
	ID            string `json:"id,omitempty"`
	Command       string `json:"command"`
	CollectionUID string `json:"collectionUid,omitempty"`
	Pathname      string `json:"pathname,omitempty"`
	OldPath       string `json:"oldPath,omitempty"`
	NewPath       string `json:"newPath,omitempty"`
}

// Commands executes UI commands against the watched collections.
type Commands interface {
	LoadFull(ctx context.Context, collectionUID, pathname string) error
	RenameItem(ctx context.Context, oldPath, newPath string) error
	DeleteItem(ctx context.Context, path string) error
}

// Client represents a WebSocket client connection
type Client struct {
	conn *websocket.Conn
	send chan []byte
	// done is closed when the write pump exits.
	done         chan struct{}
	stalled      atomic.Bool
	remoteAddr   string
	connectedAt  time.Time
	lastActivity time.Time
}

// OriginValidator interface for WebSocket origin validation
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}
