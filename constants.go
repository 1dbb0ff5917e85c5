package pingback

const (
	ipHeaderLen   = 20
	icmpHeaderLen = 8

	// MaxPayloadLen is the largest echo payload accepted in one frame.
	MaxPayloadLen = 1480
	// MaxPacketSize is the largest frame a receive buffer is sized for:
	// IPv4 header + ICMP header + payload.
	MaxPacketSize = ipHeaderLen + icmpHeaderLen + MaxPayloadLen

	// Forever makes Serve loop until the responder is stopped.
	Forever = -1

	defaultPingPayloadLen = 64 - icmpHeaderLen
)
