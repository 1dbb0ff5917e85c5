package pingback

import (
	"encoding/binary"
	"fmt"
)

// ICMPType is the type field of an ICMP header
type ICMPType uint8

const (
	ICMPTypeEchoReply              ICMPType = 0
	ICMPTypeDestinationUnreachable ICMPType = 3
	ICMPTypeEchoRequest            ICMPType = 8
)

func (t ICMPType) String() string {
	switch t {
	case ICMPTypeEchoReply:
		return "echo reply"
	case ICMPTypeDestinationUnreachable:
		return "destination unreachable"
	case ICMPTypeEchoRequest:
		return "echo request"
	}
	return fmt.Sprintf("type %d", uint8(t))
}

// Message is a decoded ICMP echo message. Messages are built fresh for every
// packet received or sent and are never mutated afterwards.
type Message struct {
	Type       ICMPType
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
	Payload    []byte
}

// Checksum computes the RFC 1071 internet checksum of b.
func Checksum(b []byte) uint16 {
	var sum uint32

	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if n%2 != 0 {
		// pad the trailing byte with a zero
		sum += uint32(b[n-1]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}

	return ^uint16(sum)
}

// Decode parses an ICMP message from raw. When hasIPHeader is set the first
// 20 bytes are treated as an IPv4 header and discarded, which is what a raw
// socket bound to IPPROTO_ICMP delivers on Linux. The checksum is parsed but
// not verified.
func Decode(raw []byte, hasIPHeader bool) (*Message, error) {
	if hasIPHeader {
		if len(raw) < ipHeaderLen+icmpHeaderLen {
			return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncatedPacket, len(raw), ipHeaderLen+icmpHeaderLen)
		}
		raw = raw[ipHeaderLen:]
	}
	if len(raw) < icmpHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncatedPacket, len(raw), icmpHeaderLen)
	}

	payload := make([]byte, len(raw)-icmpHeaderLen)
	copy(payload, raw[icmpHeaderLen:])

	return &Message{
		Type:       ICMPType(raw[0]),
		Code:       raw[1],
		Checksum:   binary.BigEndian.Uint16(raw[2:4]),
		Identifier: binary.BigEndian.Uint16(raw[4:6]),
		Sequence:   binary.BigEndian.Uint16(raw[6:8]),
		Payload:    payload,
	}, nil
}

// Encode serializes an ICMP message. The header is first written with a zero
// checksum, the checksum is computed over header and payload, and then
// written back into the header.
func Encode(typ ICMPType, code uint8, identifier, sequence uint16, payload []byte) []byte {
	b := make([]byte, icmpHeaderLen+len(payload))
	writeHeader(b, typ, code, 0, identifier, sequence)
	copy(b[icmpHeaderLen:], payload)

	writeHeader(b, typ, code, Checksum(b), identifier, sequence)
	return b
}

func writeHeader(b []byte, typ ICMPType, code uint8, checksum, identifier, sequence uint16) {
	b[0] = byte(typ)
	b[1] = code
	binary.BigEndian.PutUint16(b[2:4], checksum)
	binary.BigEndian.PutUint16(b[4:6], identifier)
	binary.BigEndian.PutUint16(b[6:8], sequence)
}

// Marshal encodes m, computing a fresh checksum. m.Checksum is ignored.
func (m *Message) Marshal() []byte {
	return Encode(m.Type, m.Code, m.Identifier, m.Sequence, m.Payload)
}

// Valid reports whether m.Checksum matches the checksum of m's fields.
func (m *Message) Valid() bool {
	b := make([]byte, icmpHeaderLen+len(m.Payload))
	writeHeader(b, m.Type, m.Code, 0, m.Identifier, m.Sequence)
	copy(b[icmpHeaderLen:], m.Payload)

	return Checksum(b) == m.Checksum
}

// Reply builds the echo reply for m. A non-empty override replaces the
// echoed payload.
func (m *Message) Reply(override []byte) *Message {
	payload := m.Payload
	if len(override) > 0 {
		payload = override
	}

	reply := &Message{
		Type:       ICMPTypeEchoReply,
		Code:       0,
		Identifier: m.Identifier,
		Sequence:   m.Sequence,
		Payload:    payload,
	}
	b := reply.Marshal()
	reply.Checksum = binary.BigEndian.Uint16(b[2:4])

	return reply
}
