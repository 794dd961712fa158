package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestVarUintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 42, 127, 128, 129, 255, 256,
		16383, 16384, 1<<21 - 1, 1 << 21,
		1<<28 - 1, 1 << 28, 1<<35 - 1,
		1<<63 - 1, math.MaxUint64,
	}

	for _, v := range values {
		e := NewEncoder()
		e.WriteVarUint(v)

		if got, want := e.Len(), VarUintLen(v); got != want {
			t.Errorf("value %d: encoded %d bytes, VarUintLen says %d", v, got, want)
		}

		d := NewDecoder(e.Bytes())
		got, err := d.ReadVarUint()
		if err != nil {
			t.Fatalf("value %d: decode: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip: got %d, want %d", got, v)
		}
		if !d.EOF() {
			t.Errorf("value %d: %d bytes left after decode", v, d.Remaining())
		}
	}
}

func TestVarUintKnownEncodings(t *testing.T) {
	tests := []struct {
		value uint64
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		e := NewEncoder()
		e.WriteVarUint(tt.value)
		if !bytes.Equal(e.Bytes(), tt.bytes) {
			t.Errorf("value %d: encoded % X, want % X", tt.value, e.Bytes(), tt.bytes)
		}
	}
}

func TestVarUintTruncated(t *testing.T) {
	// All continuation bits set, no terminator.
	d := NewDecoder([]byte{0x80, 0x80})
	if _, err := d.ReadVarUint(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated varint: got %v, want %v", err, io.ErrUnexpectedEOF)
	}

	d = NewDecoder(nil)
	if _, err := d.ReadVarUint(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("empty buffer: got %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestVarUintOverflow(t *testing.T) {
	// Eleven continuation bytes push shift past 64 bits.
	buf := bytes.Repeat([]byte{0xFF}, 11)
	d := NewDecoder(buf)
	if _, err := d.ReadVarUint(); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("got %v, want %v", err, ErrVarintOverflow)
	}
}

func TestVarBytesRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x00},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 1000),
	}

	for _, p := range payloads {
		e := NewEncoder()
		e.WriteVarBytes(p)

		d := NewDecoder(e.Bytes())
		got, err := d.ReadVarBytes()
		if err != nil {
			t.Fatalf("decode %d bytes: %v", len(p), err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip of %d bytes failed", len(p))
		}
	}
}

func TestVarBytesCopies(t *testing.T) {
	e := NewEncoder()
	e.WriteVarBytes([]byte("stable"))
	buf := e.Bytes()

	d := NewDecoder(buf)
	got, err := d.ReadVarBytes()
	if err != nil {
		t.Fatal(err)
	}

	buf[1] ^= 0xFF
	if string(got) != "stable" {
		t.Error("decoded bytes alias the decoder's buffer")
	}
}

func TestVarBytesLengthBeyondBuffer(t *testing.T) {
	e := NewEncoder()
	e.WriteVarUint(100) // length prefix, but no payload follows
	d := NewDecoder(e.Bytes())
	if _, err := d.ReadVarBytes(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestVarStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "room/name with spaces", "ünïcödé"} {
		e := NewEncoder()
		e.WriteVarString(s)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadVarString()
		if err != nil {
			t.Fatalf("decode %q: %v", s, err)
		}
		if got != s {
			t.Errorf("got %q, want %q", got, s)
		}
	}
}

func TestEncoderReset(t *testing.T) {
	e := NewEncoder()
	e.WriteVarUint(12345)
	e.Reset()
	if e.Len() != 0 {
		t.Fatalf("after Reset: Len() = %d", e.Len())
	}
	e.WriteVarUint(7)
	if !bytes.Equal(e.Bytes(), []byte{0x07}) {
		t.Errorf("after Reset: encoded % X", e.Bytes())
	}
}

func TestMessageKindString(t *testing.T) {
	tests := []struct {
		kind MessageKind
		want string
	}{
		{KindSync, "Sync"},
		{KindAwareness, "Awareness"},
		{MessageKind(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("MessageKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestEncodeSyncMessages(t *testing.T) {
	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	tests := []struct {
		name   string
		encode func([]byte) []byte
		want   SyncType
	}{
		{"step1", EncodeSyncStep1, SyncStep1},
		{"step2", EncodeSyncStep2, SyncStep2},
		{"update", EncodeSyncUpdate, SyncUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.encode(body)
			d := NewDecoder(msg)

			kind, err := ReadMessageKind(d)
			if err != nil {
				t.Fatalf("ReadMessageKind: %v", err)
			}
			if kind != KindSync {
				t.Fatalf("kind = %v, want %v", kind, KindSync)
			}

			st, err := ReadSyncType(d)
			if err != nil {
				t.Fatalf("ReadSyncType: %v", err)
			}
			if st != tt.want {
				t.Fatalf("subtype = %v, want %v", st, tt.want)
			}

			got, err := d.ReadVarBytes()
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !bytes.Equal(got, body) {
				t.Errorf("body = % X, want % X", got, body)
			}
			if !d.EOF() {
				t.Errorf("%d trailing bytes", d.Remaining())
			}
		})
	}
}

func TestEncodeAwareness(t *testing.T) {
	blob := []byte("presence blob")
	msg := EncodeAwareness(blob)

	d := NewDecoder(msg)
	kind, err := ReadMessageKind(d)
	if err != nil {
		t.Fatalf("ReadMessageKind: %v", err)
	}
	if kind != KindAwareness {
		t.Fatalf("kind = %v, want %v", kind, KindAwareness)
	}
	got, err := d.ReadVarBytes()
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("blob = %q, want %q", got, blob)
	}
}

func TestReadMessageKindUnknown(t *testing.T) {
	e := NewEncoder()
	e.WriteVarUint(7)
	d := NewDecoder(e.Bytes())
	if _, err := ReadMessageKind(d); !errors.Is(err, ErrUnknownMessageKind) {
		t.Errorf("got %v, want %v", err, ErrUnknownMessageKind)
	}
}

func TestReadSyncTypeUnknown(t *testing.T) {
	e := NewEncoder()
	e.WriteVarUint(9)
	d := NewDecoder(e.Bytes())
	if _, err := ReadSyncType(d); !errors.Is(err, ErrUnknownSyncType) {
		t.Errorf("got %v, want %v", err, ErrUnknownSyncType)
	}
}
