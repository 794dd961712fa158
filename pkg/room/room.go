// Package room owns per-document state: the CRDT engine, the presence
// table, and the live member set. All mutations to one room serialize
// through the room; different rooms proceed independently.
package room

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/codesync-dev/codesync/pkg/awareness"
	"github.com/codesync-dev/codesync/pkg/crdt"
	"github.com/codesync-dev/codesync/pkg/protocol"
)

// Member is a live connection bound to a room. Send must not block: it
// enqueues the message on the connection's bounded outbound queue and
// reports false if the queue is closed or full.
type Member interface {
	// Key identifies the connection for logging and CRDT origin tags.
	Key() string

	// Send enqueues msg for delivery. It must never block.
	Send(msg []byte) bool
}

// Room is the state owner for one shared document.
type Room struct {
	id string

	// mu serializes all mutations: the room behaves as a single-writer
	// actor even though many connections submit concurrently.
	mu       sync.Mutex
	engine   crdt.Engine
	presence *awareness.Table

	// members maps each live connection to the awareness client-session
	// ids it has introduced, so a disconnect can tombstone them.
	members map[Member]map[uint64]struct{}

	logger  *slog.Logger
	metrics *Metrics
}

func newRoom(id string, engine crdt.Engine, logger *slog.Logger, metrics *Metrics) *Room {
	return &Room{
		id:       id,
		engine:   engine,
		presence: awareness.NewTable(),
		members:  make(map[Member]map[uint64]struct{}),
		logger:   logger.With("room", id),
		metrics:  metrics,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// MemberCount returns the number of live member connections.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// PresenceCount returns the number of live presence entries.
func (r *Room) PresenceCount() int {
	return r.presence.Len()
}

// Join binds m to the room and returns the initial messages for the new
// member: a sync step 1 carrying the room's state vector, and — only if
// the room already has presence entries — one awareness snapshot.
func (r *Room) Join(m Member) (step1 []byte, snapshot []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[m] = make(map[uint64]struct{})
	r.metrics.ConnJoined()

	step1 = protocol.EncodeSyncStep1(r.engine.StateVector())
	if entries := r.presence.Snapshot(); len(entries) > 0 {
		snapshot = protocol.EncodeAwareness(awareness.EncodeUpdate(entries))
	}

	r.logger.Info("member joined", "conn", m.Key(), "members", len(r.members))
	return step1, snapshot
}

// Leave removes m from the room, tombstones the presence entries it
// introduced, and propagates the removal to the remaining members.
// Already-applied document updates are not rolled back.
func (r *Room) Leave(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	controlled, ok := r.members[m]
	if !ok {
		return
	}
	delete(r.members, m)
	r.metrics.ConnLeft()

	ids := make([]uint64, 0, len(controlled))
	for id := range controlled {
		ids = append(ids, id)
	}
	if entries := r.presence.Tombstone(ids); len(entries) > 0 {
		msg := protocol.EncodeAwareness(awareness.EncodeUpdate(entries))
		r.broadcastLocked(nil, msg)
	}

	r.logger.Info("member left", "conn", m.Key(), "members", len(r.members))
}

// HandleSync processes a content-sync message from sender. raw is the
// complete message as received; payload is the bytes after the message
// kind discriminator.
//
// Step 1 produces a point-to-point step 2 reply to the sender only.
// Step 2 and update messages are applied to the engine; if the document
// changed, the verbatim received bytes are fanned out to the other
// members — no re-derivation, so every peer sees byte-identical deltas.
func (r *Room) HandleSync(sender Member, raw, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.MessageReceived("sync")

	dec := protocol.NewDecoder(payload)
	st, err := protocol.ReadSyncType(dec)
	if err != nil {
		return fmt.Errorf("room %s: %w", r.id, err)
	}
	body, err := dec.ReadVarBytes()
	if err != nil {
		return fmt.Errorf("room %s: read sync body: %w", r.id, err)
	}

	switch st {
	case protocol.SyncStep1:
		update, err := r.engine.UpdateSince(body)
		if err != nil {
			return fmt.Errorf("room %s: compute delta: %w", r.id, err)
		}
		if !sender.Send(protocol.EncodeSyncStep2(update)) {
			r.metrics.BroadcastDropped()
		}

	case protocol.SyncStep2, protocol.SyncUpdate:
		changed, err := r.engine.ApplyUpdate(body, sender.Key())
		if err != nil {
			return fmt.Errorf("room %s: apply update: %w", r.id, err)
		}
		if changed {
			r.broadcastLocked(sender, raw)
		}
	}
	return nil
}

// HandleAwareness processes an awareness message from sender: the
// embedded update is merged into the presence table, the sender is
// recorded as controlling the mentioned client-session ids, and the raw
// received bytes are fanned out to the other members.
func (r *Room) HandleAwareness(sender Member, raw, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.MessageReceived("awareness")

	dec := protocol.NewDecoder(payload)
	blob, err := dec.ReadVarBytes()
	if err != nil {
		return fmt.Errorf("room %s: read awareness blob: %w", r.id, err)
	}
	entries, err := awareness.DecodeUpdate(blob)
	if err != nil {
		return fmt.Errorf("room %s: %w", r.id, err)
	}

	if controlled, ok := r.members[sender]; ok {
		for _, entry := range entries {
			if entry.Tombstone() {
				delete(controlled, entry.ClientID)
			} else {
				controlled[entry.ClientID] = struct{}{}
			}
		}
	}

	r.presence.Apply(entries)
	r.broadcastLocked(sender, raw)
	return nil
}

// Broadcast delivers msg to every member except sender. A nil sender
// delivers to everyone.
func (r *Room) Broadcast(sender Member, msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(sender, msg)
}

// broadcastLocked fans msg out to every member other than sender. A
// failed enqueue on one peer never aborts delivery to the rest and never
// surfaces an error to the sender.
func (r *Room) broadcastLocked(sender Member, msg []byte) {
	for m := range r.members {
		if m == sender {
			continue
		}
		if m.Send(msg) {
			r.metrics.BroadcastSent()
		} else {
			r.metrics.BroadcastDropped()
			r.logger.Debug("delivery dropped", "conn", m.Key())
		}
	}
}
