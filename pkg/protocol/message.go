package protocol

import "errors"

// MessageKind is the leading discriminator of every message.
type MessageKind uint64

const (
	// KindSync carries a content-sync submessage.
	KindSync MessageKind = 0
	// KindAwareness carries an awareness update blob.
	KindAwareness MessageKind = 1
)

// String returns the string representation of the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindSync:
		return "Sync"
	case KindAwareness:
		return "Awareness"
	default:
		return "Unknown"
	}
}

// SyncType is the subtype of a content-sync message.
type SyncType uint64

const (
	// SyncStep1 requests deltas: the payload is the sender's state vector.
	SyncStep1 SyncType = 0
	// SyncStep2 answers a step 1: the payload is the delta the requester
	// is missing.
	SyncStep2 SyncType = 1
	// SyncUpdate is an unsolicited incremental delta.
	SyncUpdate SyncType = 2
)

// String returns the string representation of the sync subtype.
func (st SyncType) String() string {
	switch st {
	case SyncStep1:
		return "Step1"
	case SyncStep2:
		return "Step2"
	case SyncUpdate:
		return "Update"
	default:
		return "Unknown"
	}
}

// Message errors.
var (
	ErrUnknownMessageKind = errors.New("protocol: unknown message kind")
	ErrUnknownSyncType    = errors.New("protocol: unknown sync subtype")
)

// EncodeSyncStep1 builds a full step 1 message carrying stateVector.
func EncodeSyncStep1(stateVector []byte) []byte {
	return encodeSync(SyncStep1, stateVector)
}

// EncodeSyncStep2 builds a full step 2 message carrying update.
func EncodeSyncStep2(update []byte) []byte {
	return encodeSync(SyncStep2, update)
}

// EncodeSyncUpdate builds a full update message carrying update.
func EncodeSyncUpdate(update []byte) []byte {
	return encodeSync(SyncUpdate, update)
}

func encodeSync(st SyncType, body []byte) []byte {
	e := NewEncoderWithCap(VarUintLen(uint64(KindSync)) + VarUintLen(uint64(st)) + VarUintLen(uint64(len(body))) + len(body))
	e.WriteVarUint(uint64(KindSync))
	e.WriteVarUint(uint64(st))
	e.WriteVarBytes(body)
	return e.Bytes()
}

// EncodeAwareness builds a full awareness message carrying update.
func EncodeAwareness(update []byte) []byte {
	e := NewEncoderWithCap(VarUintLen(uint64(KindAwareness)) + VarUintLen(uint64(len(update))) + len(update))
	e.WriteVarUint(uint64(KindAwareness))
	e.WriteVarBytes(update)
	return e.Bytes()
}

// ReadMessageKind consumes and validates the leading discriminator.
func ReadMessageKind(d *Decoder) (MessageKind, error) {
	v, err := d.ReadVarUint()
	if err != nil {
		return 0, err
	}
	kind := MessageKind(v)
	if kind != KindSync && kind != KindAwareness {
		return kind, ErrUnknownMessageKind
	}
	return kind, nil
}

// ReadSyncType consumes and validates the sync subtype discriminator.
func ReadSyncType(d *Decoder) (SyncType, error) {
	v, err := d.ReadVarUint()
	if err != nil {
		return 0, err
	}
	st := SyncType(v)
	switch st {
	case SyncStep1, SyncStep2, SyncUpdate:
		return st, nil
	default:
		return st, ErrUnknownSyncType
	}
}
