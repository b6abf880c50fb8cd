package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads authentication failures with a small randomized sleep
// so "unknown username" and "wrong password" take similar time.
type TimingDelay struct {
	baseMs   int
	randomMs int
}

func NewTimingDelay(baseMs, randomMs int) *TimingDelay {
	return &TimingDelay{baseMs: baseMs, randomMs: randomMs}
}

// Wait sleeps on failure; success returns immediately.
func (td *TimingDelay) Wait(success bool) {
	if success {
		return
	}
	time.Sleep(td.delay())
}

// WaitFrom pads from startTime so work already done counts toward the
// target delay.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success {
		return
	}

	target := td.delay()
	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}

func (td *TimingDelay) delay() time.Duration {
	d := time.Duration(td.baseMs) * time.Millisecond
	if td.randomMs > 0 {
		d += time.Duration(cryptoRandIntn(td.randomMs)) * time.Millisecond
	}
	return d
}

// cryptoRandIntn draws from crypto/rand; the jitter must not be
// predictable from previous responses.
func cryptoRandIntn(max int) int {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max))
}
