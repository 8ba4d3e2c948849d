// Package websocket is the transport to the UI process. Every published
// message is broadcast to every connected client as a JSON envelope, and
// commands sent by a client are executed and answered to that client
// only.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/logging"
	"github.com/conneroisu/bruwatch/internal/types"
)

const (
	pingPeriod   = 54 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 256
	// readLimit caps one inbound command.
	readLimit = 64 << 10
)

// Hub handles all WebSocket connection management and broadcasting.
//
// A single goroutine owns registration and broadcast; each client has a
// read pump executing its commands and a write pump draining its send
// buffer. Publish blocks while the broadcast queue is full, and a client
// that takes no frame for writeTimeout is disconnected. A client that
// connects late is first sent the latest state of every collection.
type Hub struct {
	// Connection management - protected by clientsMutex
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan broadcastItem
	register   chan *Client
	unregister chan *websocket.Conn
	state      *replay

	originValidator OriginValidator
	commands        Commands
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
	evicted      atomic.Int64
}

// broadcastItem is one published message, stamped when it was published.
type broadcastItem struct {
	msg  types.Message
	data []byte
	at   time.Time
}

// NewHub creates a hub and starts its goroutine. commands may be nil, in
// which case every command is answered with an error.
func NewHub(originValidator OriginValidator, commands Commands, logger logging.Logger) *Hub {
	if originValidator == nil {
		originValidator = NewOriginPolicy(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan broadcastItem, sendBuffer),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		state:           newReplay(),
		originValidator: originValidator,
		commands:        commands,
		logger:          logger.WithComponent("websocket"),
		ctx:             ctx,
		cancel:          cancel,
	}
	go h.runHub()
	return h
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if !h.originValidator.IsAllowedOrigin(origin) {
		h.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origins are validated above.
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(readLimit)

	now := time.Now()
	client := &Client{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		remoteAddr:   r.RemoteAddr,
		connectedAt:  now,
		lastActivity: now,
	}

	// The write pump runs before registration so the replay sent on
	// register drains while it is queued.
	go h.writeToClient(client)

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		close(client.send)
		_ = conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	default:
		close(client.send)
		_ = conn.Close(websocket.StatusTryAgainLater, "Server busy")
		return
	}

	h.handleClient(client)
}

func (h *Hub) runHub() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case conn := <-h.unregister:
			h.unregisterClient(conn)
		case item := <-h.broadcast:
			h.state.apply(item.msg, item.at)
			h.broadcastToClients(item.data)
		case <-h.ctx.Done():
			return
		}
	}
}

// registerClient adds the client and queues the current state of every
// collection ahead of any later broadcast.
func (h *Hub) registerClient(client *Client) {
	h.clientsMutex.Lock()
	h.clients[client.conn] = client
	total := len(h.clients)
	h.clientsMutex.Unlock()

	h.logger.Info(h.ctx, "WebSocket client connected", "remote", client.remoteAddr, "clients", total)

	msgs := h.state.messages()
	if len(msgs) == 0 {
		return
	}
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	for _, msg := range msgs {
		data, err := json.Marshal(types.NewEnvelope(msg))
		if err != nil {
			h.logger.Error(h.ctx, err, "Failed to marshal replayed message", "topic", string(msg.Topic()))
			continue
		}
		if !h.deliver(client, data) {
			return
		}
	}
	h.logger.Debug(h.ctx, "Replayed collection state", "remote", client.remoteAddr, "messages", len(msgs))
}

func (h *Hub) unregisterClient(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	client, exists := h.clients[conn]
	if exists {
		delete(h.clients, conn)
		close(client.send)
	}
	total := len(h.clients)
	h.clientsMutex.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info(h.ctx, "WebSocket client disconnected", "remote", client.remoteAddr, "clients", total)
	}
}

func (h *Hub) broadcastToClients(message []byte) {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for _, client := range h.clients {
		h.deliver(client, message)
	}
}

// deliver queues data for client, waiting up to writeTimeout for room in
// its buffer. A client that stays full is disconnected and skipped from
// then on. The caller holds clientsMutex.
func (h *Hub) deliver(client *Client, data []byte) bool {
	if client.stalled.Load() {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
	}

	timer := time.NewTimer(writeTimeout)
	defer timer.Stop()
	select {
	case client.send <- data:
		return true
	case <-client.done:
		client.stalled.Store(true)
		return false
	case <-h.ctx.Done():
		return false
	case <-timer.C:
	}

	client.stalled.Store(true)
	h.evicted.Add(1)
	h.logger.Warn(h.ctx, nil, "Client too slow, disconnecting", "remote", client.remoteAddr)
	go h.drop(client.conn)
	return false
}

func (h *Hub) drop(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// handleClient blocks in the read pump of a registered client.
func (h *Hub) handleClient(client *Client) {
	defer h.drop(client.conn)

	h.readFromClient(client)
}

func (h *Hub) readFromClient(client *Client) {
	for {
		_, message, err := client.conn.Read(h.ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "WebSocket read ended", "remote", client.remoteAddr, "error", err.Error())
			}
			return
		}
		client.lastActivity = time.Now()
		h.processClientMessage(client, message)
	}
}

func (h *Hub) writeToClient(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer close(client.done)

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(h.ctx, "WebSocket write failed", "remote", client.remoteAddr, "error", err.Error())
				_ = client.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				_ = client.conn.CloseNow()
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// processClientMessage decodes a command and runs it off the read pump,
// since loading a large file can take a while.
func (h *Hub) processClientMessage(client *Client, message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		h.reply(client, &types.CommandResult{Command: "unknown", Error: "malformed command: " + err.Error()})
		return
	}
	h.logger.Debug(h.ctx, "Command received", "command", cmd.Command, "id", cmd.ID)

	go func() {
		res := &types.CommandResult{ID: cmd.ID, Command: cmd.Command}
		if err := h.execute(cmd); err != nil {
			res.Error = errors.FormatError(err)
			res.Retryable = errors.IsRecoverable(err)
			h.logger.Warn(h.ctx, err, "Command failed", "command", cmd.Command, "id", cmd.ID)
		} else {
			res.OK = true
		}
		h.reply(client, res)
	}()
}

func (h *Hub) execute(cmd Command) error {
	if h.commands == nil {
		return errors.NewInternalError(errors.ErrCodeUnknownCommand, "commands are not available", nil)
	}
	switch cmd.Command {
	case CommandLoadLargeRequest:
		return h.commands.LoadFull(h.ctx, cmd.CollectionUID, cmd.Pathname)
	case CommandRenameItem:
		return h.commands.RenameItem(h.ctx, cmd.OldPath, cmd.NewPath)
	case CommandDeleteItem:
		return h.commands.DeleteItem(h.ctx, cmd.Pathname)
	default:
		return errors.NewValidationError(errors.ErrCodeUnknownCommand, fmt.Sprintf("unknown command %q", cmd.Command))
	}
}

// reply sends a message to one client if it is still connected.
func (h *Hub) reply(client *Client, msg types.Message) {
	data, err := json.Marshal(types.NewEnvelope(msg))
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal reply")
		return
	}

	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	if _, ok := h.clients[client.conn]; !ok {
		return
	}
	h.deliver(client, data)
}

// Publish broadcasts msg to every client. It blocks while the broadcast
// queue is full and returns without sending once the hub shuts down.
func (h *Hub) Publish(msg types.Message) {
	if h.isShutdown.Load() {
		return
	}
	data, err := json.Marshal(types.NewEnvelope(msg))
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal broadcast message", "topic", string(msg.Topic()))
		return
	}

	select {
	case h.broadcast <- broadcastItem{msg: msg, data: data, at: time.Now()}:
	case <-h.ctx.Done():
	}
}

// ConnectedClients returns the number of connected clients.
func (h *Hub) ConnectedClients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Evicted returns how many clients were disconnected for not keeping up.
func (h *Hub) Evicted() int64 {
	return h.evicted.Load()
}

// Shutdown closes every connection and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.isShutdown.Store(true)
		h.cancel()

		h.clientsMutex.Lock()
		for conn, client := range h.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusGoingAway, "Server shutdown")
		}
		h.clients = make(map[*websocket.Conn]*Client)
		h.clientsMutex.Unlock()

		h.logger.Info(ctx, "WebSocket hub shut down")
	})
	return nil
}

// IsShutdown reports whether Shutdown was called.
func (h *Hub) IsShutdown() bool {
	return h.isShutdown.Load()
}
