package crdt

import (
	"fmt"
	"sort"
	"sync"

	"github.com/codesync-dev/codesync/pkg/protocol"
)

// Doc is the reference Engine: a set of per-client operation logs.
//
// Each operation is identified by (clientID, clock) with clocks counting
// up from zero per client. Updates are sets of operations; merging is set
// union, which is commutative, associative, and idempotent, so replicas
// converge regardless of delivery order. Operations are never removed —
// removal of content is expressed as new operations by the editing layer.
//
// Wire formats (all varints, arrays length-prefixed):
//
//	update:       clientCount { clientID opCount { clock opBody } }
//	state vector: clientCount { clientID prefixLen }
//
// prefixLen is the length of the contiguous operation prefix known for
// that client; operations received ahead of a gap are held until the gap
// fills.
type Doc struct {
	mu  sync.RWMutex
	ops map[uint64]map[uint64][]byte // clientID -> clock -> op body
}

// NewDoc creates an empty document.
func NewDoc() *Doc {
	return &Doc{ops: make(map[uint64]map[uint64][]byte)}
}

// ApplyUpdate merges the operations in update that are not yet known.
func (d *Doc) ApplyUpdate(update []byte, origin string) (bool, error) {
	dec := protocol.NewDecoder(update)
	clientCount, err := dec.ReadVarUint()
	if err != nil {
		return false, fmt.Errorf("crdt: read client count: %w", err)
	}

	type pendingOp struct {
		client uint64
		clock  uint64
		body   []byte
	}
	var pending []pendingOp

	for i := uint64(0); i < clientCount; i++ {
		client, err := dec.ReadVarUint()
		if err != nil {
			return false, fmt.Errorf("crdt: read client id: %w", err)
		}
		opCount, err := dec.ReadVarUint()
		if err != nil {
			return false, fmt.Errorf("crdt: read op count: %w", err)
		}
		for j := uint64(0); j < opCount; j++ {
			clock, err := dec.ReadVarUint()
			if err != nil {
				return false, fmt.Errorf("crdt: read clock: %w", err)
			}
			body, err := dec.ReadVarBytes()
			if err != nil {
				return false, fmt.Errorf("crdt: read op body: %w", err)
			}
			pending = append(pending, pendingOp{client: client, clock: clock, body: body})
		}
	}

	// Decode fully before mutating so a truncated update leaves the
	// document byte-identical.
	d.mu.Lock()
	defer d.mu.Unlock()

	changed := false
	for _, op := range pending {
		log := d.ops[op.client]
		if log == nil {
			log = make(map[uint64][]byte)
			d.ops[op.client] = log
		}
		if _, seen := log[op.clock]; seen {
			continue
		}
		log[op.clock] = op.body
		changed = true
	}
	return changed, nil
}

// StateVector encodes the contiguous-prefix lengths of all client logs,
// sorted by client id so equal states encode to equal bytes.
func (d *Doc) StateVector() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	clients := d.sortedClientsLocked()
	e := protocol.NewEncoder()
	e.WriteVarUint(uint64(len(clients)))
	for _, client := range clients {
		e.WriteVarUint(client)
		e.WriteVarUint(d.prefixLenLocked(client))
	}
	return e.Bytes()
}

// UpdateSince encodes every operation the holder of stateVector has not
// yet seen. A nil or empty vector yields the full document.
func (d *Doc) UpdateSince(stateVector []byte) ([]byte, error) {
	known := make(map[uint64]uint64)
	if len(stateVector) > 0 {
		dec := protocol.NewDecoder(stateVector)
		clientCount, err := dec.ReadVarUint()
		if err != nil {
			return nil, fmt.Errorf("crdt: read vector client count: %w", err)
		}
		for i := uint64(0); i < clientCount; i++ {
			client, err := dec.ReadVarUint()
			if err != nil {
				return nil, fmt.Errorf("crdt: read vector client id: %w", err)
			}
			prefix, err := dec.ReadVarUint()
			if err != nil {
				return nil, fmt.Errorf("crdt: read vector prefix: %w", err)
			}
			known[client] = prefix
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	type clientOps struct {
		client uint64
		clocks []uint64
	}
	var out []clientOps
	for _, client := range d.sortedClientsLocked() {
		from := known[client]
		var clocks []uint64
		for clock := range d.ops[client] {
			if clock >= from {
				clocks = append(clocks, clock)
			}
		}
		if len(clocks) == 0 {
			continue
		}
		sort.Slice(clocks, func(i, j int) bool { return clocks[i] < clocks[j] })
		out = append(out, clientOps{client: client, clocks: clocks})
	}

	e := protocol.NewEncoder()
	e.WriteVarUint(uint64(len(out)))
	for _, co := range out {
		e.WriteVarUint(co.client)
		e.WriteVarUint(uint64(len(co.clocks)))
		for _, clock := range co.clocks {
			e.WriteVarUint(clock)
			e.WriteVarBytes(d.ops[co.client][clock])
		}
	}
	return e.Bytes(), nil
}

// AppendLocal records a new local operation for client and returns it
// encoded as a single-operation update, ready to send to peers.
func (d *Doc) AppendLocal(client uint64, body []byte) []byte {
	d.mu.Lock()
	clock := d.prefixLenLocked(client)
	log := d.ops[client]
	if log == nil {
		log = make(map[uint64][]byte)
		d.ops[client] = log
	}
	log[clock] = append([]byte(nil), body...)
	d.mu.Unlock()

	e := protocol.NewEncoder()
	e.WriteVarUint(1)
	e.WriteVarUint(client)
	e.WriteVarUint(1)
	e.WriteVarUint(clock)
	e.WriteVarBytes(body)
	return e.Bytes()
}

// OpCount returns the total number of operations held.
func (d *Doc) OpCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, log := range d.ops {
		n += len(log)
	}
	return n
}

func (d *Doc) sortedClientsLocked() []uint64 {
	clients := make([]uint64, 0, len(d.ops))
	for client := range d.ops {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })
	return clients
}

func (d *Doc) prefixLenLocked(client uint64) uint64 {
	log := d.ops[client]
	var n uint64
	for {
		if _, ok := log[n]; !ok {
			return n
		}
		n++
	}
}

var _ Engine = (*Doc)(nil)
