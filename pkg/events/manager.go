package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/painscope/painscope/pkg/models"
)

// backfillLimit caps events replayed per backfill. Beyond it the client
// is told to reload over REST.
const backfillLimit = 500

// listenTimeout bounds how long a LISTEN may block during subscribe so a
// stalled listener connection cannot wedge a client's read loop.
const listenTimeout = 10 * time.Second

// BackfillStore reads the durable event log. Implemented by
// *services.EventService.
type BackfillStore interface {
	GetEventsSince(ctx context.Context, searchID string, sinceSeq int64, limit int) ([]*models.SearchEvent, error)
}

// SnapshotStore reads persisted derived rows for terminal searches.
// Implemented by *services.ResultService.
type SnapshotStore interface {
	GetPainPoints(ctx context.Context, searchID string) ([]models.PainPoint, error)
	GetQuotes(ctx context.Context, searchID string) ([]models.PainPointQuote, error)
}

// SearchReader loads search rows. Implemented by *services.SearchService.
type SearchReader interface {
	Get(ctx context.Context, id string) (*models.Search, error)
}

// ConnectionManager tracks WebSocket connections and their channel
// subscriptions. One instance per process.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// channel → set of connection ids
	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	backfill BackfillStore
	snapshot SnapshotStore
	searches SearchReader

	listener   *NotifyListener
	listenerMu sync.RWMutex

	writeTimeout time.Duration
}

// Connection is a single WebSocket client. subscriptions is only touched
// by the goroutine owning the read loop, so it needs no lock.
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a ConnectionManager.
func NewConnectionManager(backfill BackfillStore, snapshot SnapshotStore, searches SearchReader, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		backfill:     backfill,
		snapshot:     snapshot,
		searches:     searches,
		writeTimeout: writeTimeout,
	}
}

// SetListener wires the NotifyListener for dynamic LISTEN/UNLISTEN.
// Called once during startup after both sides exist.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// HandleConnection runs the lifecycle of one WebSocket connection and
// blocks until it closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:            connID,
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
			continue
		}
		m.handleClientMessage(ctx, c, &msg)
	}
}

// Broadcast sends a frame to every connection subscribed to channel.
func (m *ConnectionManager) Broadcast(channel string, frame []byte) {
	m.channelMu.RLock()
	connIDs, exists := m.channels[channel]
	if !exists {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	// Snapshot pointers before sending so a slow write (up to
	// writeTimeout) never stalls register/unregister.
	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, frame); err != nil {
			slog.Warn("Failed to send to WebSocket client", "connection_id", conn.ID, "error", err)
		}
	}
}

// ActiveConnections returns the number of open WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		if err := m.subscribe(c, msg.Channel); err != nil {
			m.sendJSON(c, map[string]string{
				"type":    "subscription.error",
				"channel": msg.Channel,
				"message": "failed to subscribe to channel",
			})
			return
		}
		m.sendJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})
		// Auto-backfill so late joiners see the full history before live
		// delivery continues. LISTEN is already active at this point, so
		// overlap is possible but loss is not; the client's seen-set
		// drops duplicates by event id.
		m.runBackfill(ctx, c, msg.Channel, 0)

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "backfill":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for backfill"})
			return
		}
		var since int64
		if msg.SinceSeq != nil {
			since = *msg.SinceSeq
		}
		m.runBackfill(ctx, c, msg.Channel, since)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe registers the connection and starts LISTEN when it is the
// channel's first subscriber. LISTEN completes before subscribe returns
// so the auto-backfill that follows cannot race a gap.
func (m *ConnectionManager) subscribe(c *Connection, channel string) error {
	m.channelMu.Lock()
	needsListen := false
	if _, exists := m.channels[channel]; !exists {
		m.channels[channel] = make(map[string]bool)
		needsListen = true
	}
	m.channels[channel][c.ID] = true
	m.channelMu.Unlock()

	if needsListen {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			defer cancel()
			if err := l.Subscribe(listenCtx, channel); err != nil {
				slog.Error("Failed to LISTEN on channel", "channel", channel, "error", err)
				m.channelMu.Lock()
				delete(m.channels[channel], c.ID)
				if len(m.channels[channel]) == 0 {
					delete(m.channels, channel)
				}
				m.channelMu.Unlock()
				return fmt.Errorf("LISTEN on channel %s: %w", channel, err)
			}
		}
	}

	c.subscriptions[channel] = true
	return nil
}

// unsubscribe removes the connection from a channel and stops LISTEN
// when the last subscriber leaves.
func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	if subs, exists := m.channels[channel]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, channel)
			m.listenerMu.RLock()
			l := m.listener
			m.listenerMu.RUnlock()
			if l != nil {
				go func() {
					// Re-check before UNLISTEN: a rapid resubscribe may
					// have re-added the channel.
					m.channelMu.RLock()
					_, resubscribed := m.channels[channel]
					m.channelMu.RUnlock()
					if resubscribed {
						return
					}
					if err := l.Unsubscribe(context.Background(), channel); err != nil {
						slog.Error("Failed to UNLISTEN channel", "channel", channel, "error", err)
					}
				}()
			}
		}
	}
	m.channelMu.Unlock()

	delete(c.subscriptions, channel)
}

// runBackfill replays the durable events of a search channel since the
// given cursor, then closes with a snapshot frame when the search is
// terminal.
func (m *ConnectionManager) runBackfill(ctx context.Context, c *Connection, channel string, sinceSeq int64) {
	searchID, ok := strings.CutPrefix(channel, "search:")
	if !ok || m.backfill == nil {
		return
	}

	events, err := m.backfill.GetEventsSince(ctx, searchID, sinceSeq, backfillLimit+1)
	if err != nil {
		slog.Error("Backfill query failed", "channel", channel, "error", err)
		return
	}

	hasMore := len(events) > backfillLimit
	if hasMore {
		events = events[:backfillLimit]
	}

	for _, evt := range events {
		frame, err := encodeWireEvent(evt)
		if err != nil {
			continue
		}
		if err := m.sendRaw(c, []byte(frame)); err != nil {
			slog.Warn("Failed to send backfill event", "connection_id", c.ID, "error", err)
			return
		}
	}

	if hasMore {
		m.sendJSON(c, map[string]any{
			"type":     FrameBackfillOverflow,
			"channel":  channel,
			"has_more": true,
		})
		return
	}

	m.sendTerminalSnapshot(ctx, c, searchID)
}

// sendTerminalSnapshot delivers the persisted pain points and quotes of
// a terminal search so a late subscriber does not wait for live events
// that will never come.
func (m *ConnectionManager) sendTerminalSnapshot(ctx context.Context, c *Connection, searchID string) {
	if m.searches == nil || m.snapshot == nil {
		return
	}
	search, err := m.searches.Get(ctx, searchID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("Backfill search lookup failed", "search_id", searchID, "error", err)
		}
		return
	}
	if !search.Status.IsTerminal() {
		return
	}

	points, err := m.snapshot.GetPainPoints(ctx, searchID)
	if err != nil {
		slog.Warn("Backfill pain point query failed", "search_id", searchID, "error", err)
		return
	}
	quotes, err := m.snapshot.GetQuotes(ctx, searchID)
	if err != nil {
		slog.Warn("Backfill quote query failed", "search_id", searchID, "error", err)
		return
	}

	m.sendJSON(c, SearchSnapshotFrame{
		Type:       FrameSearchSnapshot,
		SearchID:   searchID,
		Status:     search.Status,
		PainPoints: points,
		Quotes:     quotes,
	})
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

// subscriberCount is used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[channel])
}
