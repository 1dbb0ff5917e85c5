package main

import (
	"strings"
	"testing"
	"time"

	"github.com/trstruth/pingback"
)

func TestRenderStats(t *testing.T) {
	out := renderStats(pingback.PingStats{
		Transmitted: 4,
		Received:    3,
		RTTs:        []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond},
	})

	for _, want := range []string{"TX", "LOSS", "25.0%", "1.000", "2.000", "3.000"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in rendered stats:\n%s", want, out)
		}
	}
}
