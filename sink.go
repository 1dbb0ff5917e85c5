package pingback

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Logger returns the package logger so callers can adjust its level and output.
func Logger() *logrus.Logger {
	return log
}

// EventKind enumerates what a responder reports to its Sink
type EventKind int

const (
	EventListening EventKind = iota
	EventReceived
	EventReplied
	EventDiscarded
	EventMalformed
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventListening:
		return "listening"
	case EventReceived:
		return "received"
	case EventReplied:
		return "replied"
	case EventDiscarded:
		return "discarded"
	case EventMalformed:
		return "malformed"
	case EventStopped:
		return "stopped"
	}
	return "unknown"
}

// Event is one observation made by a Responder.
// Addr is the peer for packet events and the bind address for EventListening.
// Frame holds the raw bytes seen on the wire: the full IPv4 frame for received
// packets and the bare ICMP message for replies.
type Event struct {
	Kind      EventKind
	Responder uuid.UUID
	Addr      net.IP
	Message   *Message
	Frame     []byte
	Err       error
}

// Sink receives responder events. It is purely observational.
type Sink interface {
	Record(event Event)
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) Record(Event) {}

// LogrusSink writes events to a logrus logger, adding a packet dump at debug level.
type LogrusSink struct {
	logger *logrus.Logger
}

// NewLogrusSink returns a sink writing to logger, or to the package logger when logger is nil.
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = log
	}
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) Record(e Event) {
	fields := logrus.Fields{
		"responder": e.Responder.String(),
		"event":     e.Kind.String(),
	}
	if e.Addr != nil {
		fields["addr"] = e.Addr.String()
	}
	if m := e.Message; m != nil {
		fields["type"] = m.Type.String()
		fields["id"] = m.Identifier
		fields["seq"] = m.Sequence
		fields["len"] = len(m.Payload)
	}
	entry := s.logger.WithFields(fields)

	switch e.Kind {
	case EventListening:
		entry.Info("responder listening")
	case EventStopped:
		entry.Info("responder stopped")
	case EventReplied:
		entry.Info("sent echo reply")
	case EventMalformed:
		entry.WithError(e.Err).Warn("skipping malformed packet")
	default:
		entry.Debug("packet")
	}

	if len(e.Frame) > 0 && s.logger.IsLevelEnabled(logrus.DebugLevel) {
		entry.Debugf("packet dump:\n%s", DumpFrame(e.Frame, e.Kind != EventReplied))
	}
}

// DumpFrame renders frame as a layer by layer description with hex and ASCII
// dumps. hasIPHeader selects whether decoding starts at IPv4 or ICMPv4.
func DumpFrame(frame []byte, hasIPHeader bool) string {
	first := layers.LayerTypeICMPv4
	if hasIPHeader {
		first = layers.LayerTypeIPv4
	}
	return gopacket.NewPacket(frame, first, gopacket.Default).Dump()
}
