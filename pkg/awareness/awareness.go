// Package awareness implements the ephemeral presence sub-protocol:
// per-client state blobs (cursor, selection, identity) that are replaced
// wholesale on update and tombstoned on disconnect.
package awareness

import (
	"fmt"
	"sync"

	"github.com/codesync-dev/codesync/pkg/protocol"
)

// Entry is one client's presence record inside an awareness update.
// A nil State is a tombstone: the client is gone and peers must forget it.
type Entry struct {
	ClientID uint64
	Clock    uint64
	State    []byte
}

// Tombstone reports whether the entry removes its client.
func (e Entry) Tombstone() bool {
	return e.State == nil
}

// nullState marks a tombstone on the wire, mirroring the JSON "null" the
// editor clients encode.
const nullState = "null"

// EncodeUpdate encodes entries as an awareness update blob. The blob is
// the payload of a KindAwareness message, not the full message.
func EncodeUpdate(entries []Entry) []byte {
	e := protocol.NewEncoder()
	e.WriteVarUint(uint64(len(entries)))
	for _, entry := range entries {
		e.WriteVarUint(entry.ClientID)
		e.WriteVarUint(entry.Clock)
		if entry.State == nil {
			e.WriteVarString(nullState)
		} else {
			e.WriteVarBytes(entry.State)
		}
	}
	return e.Bytes()
}

// DecodeUpdate decodes an awareness update blob.
func DecodeUpdate(blob []byte) ([]Entry, error) {
	dec := protocol.NewDecoder(blob)
	count, err := dec.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("awareness: read entry count: %w", err)
	}
	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		clientID, err := dec.ReadVarUint()
		if err != nil {
			return nil, fmt.Errorf("awareness: read client id: %w", err)
		}
		clock, err := dec.ReadVarUint()
		if err != nil {
			return nil, fmt.Errorf("awareness: read clock: %w", err)
		}
		state, err := dec.ReadVarBytes()
		if err != nil {
			return nil, fmt.Errorf("awareness: read state: %w", err)
		}
		entry := Entry{ClientID: clientID, Clock: clock}
		if string(state) != nullState {
			entry.State = state
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type record struct {
	clock uint64
	state []byte // nil after tombstone
}

// Table is a room's presence table: client-session id to latest record.
// Tombstoned records are kept (with nil state) so a stale update with an
// older clock cannot resurrect a departed client.
type Table struct {
	mu      sync.RWMutex
	records map[uint64]*record
}

// NewTable creates an empty presence table.
func NewTable() *Table {
	return &Table{records: make(map[uint64]*record)}
}

// Apply merges entries into the table and returns the entries that
// actually changed it. Last write wins per client id: a newer clock
// replaces the record wholesale; on an equal clock a tombstone wins.
func (t *Table) Apply(entries []Entry) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var applied []Entry
	for _, entry := range entries {
		cur, ok := t.records[entry.ClientID]
		if ok {
			if entry.Clock < cur.clock {
				continue
			}
			if entry.Clock == cur.clock && (cur.state == nil || !entry.Tombstone()) {
				continue
			}
		}
		t.records[entry.ClientID] = &record{clock: entry.Clock, state: entry.State}
		applied = append(applied, entry)
	}
	return applied
}

// Snapshot returns the live (non-tombstoned) entries, for replaying the
// current presence to a late joiner.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, 0, len(t.records))
	for clientID, rec := range t.records {
		if rec.state == nil {
			continue
		}
		entries = append(entries, Entry{ClientID: clientID, Clock: rec.clock, State: rec.state})
	}
	return entries
}

// Tombstone marks the given client ids as gone, bumping each clock so the
// removal supersedes the client's last update. It returns the tombstone
// entries to propagate, skipping ids that are unknown or already gone.
func (t *Table) Tombstone(clientIDs []uint64) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []Entry
	for _, clientID := range clientIDs {
		cur, ok := t.records[clientID]
		if !ok || cur.state == nil {
			continue
		}
		cur.clock++
		cur.state = nil
		entries = append(entries, Entry{ClientID: clientID, Clock: cur.clock})
	}
	return entries
}

// Len returns the number of live presence entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rec := range t.records {
		if rec.state != nil {
			n++
		}
	}
	return n
}
