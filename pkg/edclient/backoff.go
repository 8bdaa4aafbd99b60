package edclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff configures the reconnect delays of the socket.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
	// Jitter spreads each delay by up to this fraction so clients dropped
	// by a server restart do not reconnect in lockstep.
	Jitter float64
}

// DefaultBackoff starts at 500ms, doubles and stops growing at 30s.
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Factor: 2, Max: 30 * time.Second, Jitter: 0.2}
}

// policy builds a fresh schedule. It never gives up; the caller's context
// ends the retries.
func (b Backoff) policy() *backoff.ExponentialBackOff {
	def := DefaultBackoff()
	if b.Base <= 0 {
		b.Base = def.Base
	}
	if b.Factor < 1 {
		b.Factor = def.Factor
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = b.Base
	p.Multiplier = b.Factor
	p.MaxInterval = b.Max
	p.RandomizationFactor = b.Jitter
	p.MaxElapsedTime = 0
	p.Reset()
	return p
}
