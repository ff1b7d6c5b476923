// Package transport is the seam between the bridge core and the socket
// server that carries events to viewers. The hub fans bridge events out to
// per-guild subscriber sessions; socket framing lives outside this repo.
package transport

import (
	"context"
	"sync"

	"github.com/NNTin/d-cogs/internal/wire"
)

const (
	EventPresence       = "presence"
	EventMessage        = "message"
	EventClientIDUpdate = "client-id-update"
)

// Envelope is one bridge event addressed to a guild's viewers.
type Envelope struct {
	GuildID   string
	EventType string
	Record    wire.PresenceRecord // presence and message events
	ClientID  string              // client-id-update events
}

// Hub dispatches envelopes to the sessions subscribed per guild.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*hubSubscriber
	nextID      int64
	bufferSize  int
}

type hubSubscriber struct {
	id     int64
	stream chan Envelope
}

// NewHub constructs an empty dispatcher.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[int64]*hubSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a session for one guild's events. The stream closes
// logically when the context ends; callers may also invoke the returned
// cleanup directly.
func (h *Hub) Subscribe(ctx context.Context, guildID string) (<-chan Envelope, func()) {
	if guildID == "" {
		ch := make(chan Envelope)
		close(ch)
		return ch, func() {}
	}
	subscriber := &hubSubscriber{
		id:     h.nextSequence(),
		stream: make(chan Envelope, h.bufferSize),
	}
	h.registerSubscriber(guildID, subscriber)
	cleanup := func() {
		h.unregisterSubscriber(guildID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the envelope to every session subscribed to its guild.
// Sessions with full buffers drop the event rather than block the forwarder.
func (h *Hub) Publish(envelope Envelope) {
	if envelope.GuildID == "" || envelope.EventType == "" {
		return
	}
	h.mu.RLock()
	subscribers := h.subscribers[envelope.GuildID]
	if len(subscribers) == 0 {
		h.mu.RUnlock()
		return
	}
	copies := make([]*hubSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	h.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- envelope:
		default:
		}
	}
}

// ConnectionCount reports the number of live subscribed sessions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, sessions := range h.subscribers {
		total += len(sessions)
	}
	return total
}

// BroadcastPresence pushes a presence record to the guild's sessions.
func (h *Hub) BroadcastPresence(_ context.Context, guildID string, record wire.PresenceRecord) error {
	h.Publish(Envelope{GuildID: guildID, EventType: EventPresence, Record: record})
	return nil
}

// BroadcastMessage pushes a chat message record to the guild's sessions.
func (h *Hub) BroadcastMessage(_ context.Context, guildID string, record wire.PresenceRecord) error {
	h.Publish(Envelope{GuildID: guildID, EventType: EventMessage, Record: record})
	return nil
}

// BroadcastClientIDUpdate tells the guild's sessions to restart their OAuth
// flow against the new application id.
func (h *Hub) BroadcastClientIDUpdate(_ context.Context, guildID, clientID string) error {
	h.Publish(Envelope{GuildID: guildID, EventType: EventClientIDUpdate, ClientID: clientID})
	return nil
}

func (h *Hub) nextSequence() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

func (h *Hub) registerSubscriber(guildID string, subscriber *hubSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[guildID]; !ok {
		h.subscribers[guildID] = make(map[int64]*hubSubscriber)
	}
	h.subscribers[guildID][subscriber.id] = subscriber
}

func (h *Hub) unregisterSubscriber(guildID string, subscriberID int64) {
	h.mu.Lock()
	subscribers := h.subscribers[guildID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(h.subscribers, guildID)
		}
	}
	h.mu.Unlock()
}
