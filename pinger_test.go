package pingback

import (
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
)

var (
	pingerIP = net.IP{10, 0, 0, 1}
	targetIP = net.IP{10, 0, 0, 2}
)

func TestPingerAgainstResponder(t *testing.T) {
	client := newFakeSocket(pingerIP)
	server := newFakeSocket(targetIP)
	connectFakeSockets(client, server)

	r := NewResponder(WithSink(NopSink{}), WithSocketOpener(server.opener()))
	if err := r.Start(targetIP); err != nil {
		t.Fatalf("Failed to start responder: %s", err)
	}
	errc := serveAsync(r, Forever, nil)

	p := NewPinger(client, WithIdentifier(0x4242), WithInterval(time.Millisecond), WithReplyTimeout(time.Second))

	var mu sync.Mutex
	var results []EchoResult
	stats, err := p.Run(context.Background(), targetIP, 3, func(res EchoResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, res)
	})
	if err != nil {
		t.Fatalf("Run returned an error: %s", err)
	}

	if stats.Transmitted != 3 || stats.Received != 3 || stats.Duplicates != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Loss() != 0 {
		t.Errorf("expected no loss, got %.1f%%", stats.Loss())
	}

	for i, res := range results {
		if res.Err != nil {
			t.Errorf("ping %d failed: %s", i, res.Err)
			continue
		}
		if res.Sequence != uint16(i) {
			t.Errorf("result %d has seq %d", i, res.Sequence)
		}
		if !res.Peer.Equal(targetIP) {
			t.Errorf("result %d came from %s, expected %s", i, res.Peer, targetIP)
		}
		if res.Size != icmpHeaderLen+defaultPingPayloadLen {
			t.Errorf("result %d has size %d, expected %d", i, res.Size, icmpHeaderLen+defaultPingPayloadLen)
		}
	}

	r.Stop()
	<-errc
	p.Close()

	if r.Stats().Replied != 3 {
		t.Errorf("responder should have replied 3 times, got %+v", r.Stats())
	}
}

func TestPingerTimeout(t *testing.T) {
	client := newFakeSocket(pingerIP)
	p := NewPinger(client, WithReplyTimeout(20*time.Millisecond))
	defer p.Close()

	res := p.Ping(targetIP, 1)
	if !res.IsTimeout() {
		t.Errorf("expected a timeout, got %+v", res)
	}
	if res.IsFatal() {
		t.Errorf("a timeout should not be fatal")
	}

	stats := p.Stats()
	if stats.Transmitted != 1 || stats.Received != 0 || stats.Loss() != 100 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// answer replies to the next request written to client, sending copies
// identical replies and optionally rewriting the identifier.
func answer(t *testing.T, client *fakeSocket, copies int, identifier *uint16) {
	t.Helper()

	sent, ok := client.nextSent(time.Second)
	if !ok {
		t.Errorf("pinger never sent a request")
		return
	}
	req, err := Decode(sent.data, false)
	if err != nil {
		t.Errorf("failed to decode request: %s", err)
		return
	}
	if identifier != nil {
		req.Identifier = *identifier
	}

	buf := gopacket.NewSerializeBuffer()
	if err := BuildICMPFrame(sent.addr, pingerIP, 64, req.Reply(nil), buf); err != nil {
		t.Errorf("failed to build reply: %s", err)
		return
	}
	for i := 0; i < copies; i++ {
		client.deliver(buf.Bytes(), sent.addr)
	}
}

func TestPingerCountsDuplicates(t *testing.T) {
	client := newFakeSocket(pingerIP)
	p := NewPinger(client, WithReplyTimeout(time.Second))
	defer p.Close()

	go answer(t, client, 2, nil)

	res := p.Ping(targetIP, 9)
	if res.Err != nil {
		t.Fatalf("Ping failed: %s", res.Err)
	}

	deadline := time.Now().Add(time.Second)
	for p.Stats().Duplicates != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 duplicate, stats are %+v", p.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if p.Stats().Received != 1 {
		t.Errorf("duplicates should not count as received, stats are %+v", p.Stats())
	}
}

func TestPingerIgnoresOtherIdentifiers(t *testing.T) {
	client := newFakeSocket(pingerIP)
	p := NewPinger(client, WithIdentifier(1), WithReplyTimeout(50*time.Millisecond))
	defer p.Close()

	other := uint16(2)
	go answer(t, client, 1, &other)

	if res := p.Ping(targetIP, 1); !res.IsTimeout() {
		t.Errorf("a reply for another identifier should be ignored, got %+v", res)
	}
}

func TestPingerRunStopsOnCanceledContext(t *testing.T) {
	client := newFakeSocket(pingerIP)
	p := NewPinger(client)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := p.Run(ctx, targetIP, Forever, nil)
	if err != nil {
		t.Errorf("Run returned an error: %s", err)
	}
	if stats.Transmitted != 0 {
		t.Errorf("nothing should be sent on a canceled context, stats are %+v", stats)
	}
}

func TestPingerFatalAfterClose(t *testing.T) {
	client := newFakeSocket(pingerIP)
	p := NewPinger(client)
	p.Close()

	stats, err := p.Run(context.Background(), targetIP, 5, nil)
	if err == nil {
		t.Errorf("expected a fatal error after Close")
	}
	if stats.Transmitted != 0 {
		t.Errorf("expected nothing transmitted, got %+v", stats)
	}
}

func TestPingerPayload(t *testing.T) {
	p := NewPinger(newFakeSocket(pingerIP), WithPayloadSize(16))
	defer p.Close()

	b := p.payload()
	if len(b) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(b))
	}
	for i := 8; i < len(b); i++ {
		if b[i] != byte(i) {
			t.Errorf("pattern byte %d = %d", i, b[i])
		}
	}

	capped := NewPinger(newFakeSocket(pingerIP), WithPayloadSize(MaxPayloadLen+1))
	defer capped.Close()
	if got := capped.PayloadSize(); got != MaxPayloadLen {
		t.Errorf("payload size should be capped at %d, got %d", MaxPayloadLen, got)
	}
}

func TestPingStats(t *testing.T) {
	stats := PingStats{
		Transmitted: 4,
		Received:    3,
		RTTs:        []time.Duration{2 * time.Millisecond, time.Millisecond, 3 * time.Millisecond},
	}

	if stats.Loss() != 25 {
		t.Errorf("expected 25%% loss, got %v", stats.Loss())
	}
	if stats.MinRTT() != time.Millisecond {
		t.Errorf("expected min 1ms, got %s", stats.MinRTT())
	}
	if stats.MaxRTT() != 3*time.Millisecond {
		t.Errorf("expected max 3ms, got %s", stats.MaxRTT())
	}
	if stats.AvgRTT() != 2*time.Millisecond {
		t.Errorf("expected avg 2ms, got %s", stats.AvgRTT())
	}

	expected := time.Duration(math.Sqrt(2.0/3.0) * float64(time.Millisecond))
	if diff := stats.StdDevRTT() - expected; diff > time.Microsecond || diff < -time.Microsecond {
		t.Errorf("expected stddev %s, got %s", expected, stats.StdDevRTT())
	}

	empty := PingStats{}
	if empty.Loss() != 0 || empty.AvgRTT() != 0 || empty.StdDevRTT() != 0 || empty.MinRTT() != 0 {
		t.Errorf("empty stats should be all zero")
	}
}
