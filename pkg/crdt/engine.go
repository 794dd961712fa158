// Package crdt defines the conflict-free document engine boundary used by
// the relay, plus a log-structured reference implementation.
//
// The relay never inspects document content. It only needs the three
// operations below, and any engine that guarantees convergence regardless
// of the order in which valid updates are applied satisfies the contract.
package crdt

// Engine is the document merge engine owned by a room.
//
// Implementations must be safe for concurrent use: a room serializes its
// own mutations, but state vectors may be read while another goroutine
// applies an update.
type Engine interface {
	// ApplyUpdate merges a peer-supplied delta into the document.
	// origin tags the source connection for diagnostics. It reports
	// whether the document state changed.
	ApplyUpdate(update []byte, origin string) (bool, error)

	// StateVector returns a compact summary of everything the engine has
	// already incorporated.
	StateVector() []byte

	// UpdateSince computes the delta a peer with the given state vector
	// is missing. An empty or nil vector yields the full document.
	UpdateSince(stateVector []byte) ([]byte, error)
}
