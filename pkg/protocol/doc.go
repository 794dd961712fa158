// Package protocol implements the binary wire format spoken between the
// relay and editor clients.
//
// Every message starts with a varint message kind:
//
//	0  content sync  — a varint sync subtype followed by a length-prefixed
//	                   byte array (state vector or document delta)
//	1  awareness     — one length-prefixed awareness update blob
//
// All integers use unsigned LEB128-style varints: seven data bits per
// byte, high bit set on every byte except the last. Byte arrays are
// prefixed with their varint length.
package protocol
