package pingback

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func buildIPv4ICMPLayer(sourceIP, destIP net.IP, totalLength uint16, ttl uint8) *layers.IPv4 {
	ipLayer := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Length:   totalLength,
		Flags:    layers.IPv4DontFragment,
		TTL:      ttl,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    sourceIP,
		DstIP:    destIP,
	}

	return ipLayer
}

// BuildICMPFrame serializes msg behind an IPv4 header into buf, producing the
// same layout a raw IPPROTO_ICMP socket hands to the responder. Checksums for
// both layers are computed by gopacket; msg.Checksum is ignored.
func BuildICMPFrame(sourceIP, destIP net.IP, ttl uint8, msg *Message, buf gopacket.SerializeBuffer) error {
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
	}

	ipLength := uint16(ipHeaderLen + icmpHeaderLen + len(msg.Payload))
	ipLayer := buildIPv4ICMPLayer(sourceIP.To4(), destIP.To4(), ipLength, ttl)

	icmpLayer := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(uint8(msg.Type), msg.Code),
		Id:       msg.Identifier,
		Seq:      msg.Sequence,
	}

	return gopacket.SerializeLayers(buf, opts,
		ipLayer,
		icmpLayer,
		gopacket.Payload(msg.Payload),
	)
}

// BuildEchoRequestFrame is BuildICMPFrame for an echo request, returning the frame bytes.
func BuildEchoRequestFrame(sourceIP, destIP net.IP, identifier, sequence uint16, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	msg := &Message{
		Type:       ICMPTypeEchoRequest,
		Identifier: identifier,
		Sequence:   sequence,
		Payload:    payload,
	}
	if err := BuildICMPFrame(sourceIP, destIP, 64, msg, buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
