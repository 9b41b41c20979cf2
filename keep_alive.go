package asyncmqtt

import "time"

// Clock supplies the time keep-alive decisions are made against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type keepAliveAction uint8

const (
	keepAliveIdle keepAliveAction = iota
	keepAliveSendPing
	keepAliveTimeout
)

// Ping thresholds as fractions of the keep-alive interval.
const (
	pingAfterNumerator   = 7
	pingAfterDenominator = 10
	pingTimeoutFactor    = 2
)

// keepAliveScheduler decides on each tick whether a PINGREQ is due or the
// server has stopped answering.
type keepAliveScheduler struct {
	interval     time.Duration
	lastOutbound time.Time
	lastInbound  time.Time
	pingSentAt   time.Time
	pingPending  bool
}

func newKeepAliveScheduler(interval time.Duration, now time.Time) *keepAliveScheduler {
	return &keepAliveScheduler{
		interval:     interval,
		lastOutbound: now,
		lastInbound:  now,
	}
}

// SetInterval replaces the interval, e.g. with a server keep alive.
func (k *keepAliveScheduler) SetInterval(d time.Duration) {
	k.interval = d
}

// Interval returns the interval in effect.
func (k *keepAliveScheduler) Interval() time.Duration {
	return k.interval
}

// Outbound records a successful send.
func (k *keepAliveScheduler) Outbound(now time.Time) {
	k.lastOutbound = now
}

// Inbound records the first byte of an inbound packet.
func (k *keepAliveScheduler) Inbound(now time.Time) {
	k.lastInbound = now
}

// PingSent marks a PINGREQ as outstanding.
func (k *keepAliveScheduler) PingSent(now time.Time) {
	k.pingSentAt = now
	k.pingPending = true
	k.lastOutbound = now
}

// PingResponse clears the outstanding PINGREQ.
func (k *keepAliveScheduler) PingResponse() {
	k.pingPending = false
}

// PingPending reports whether a PINGREQ is waiting for its PINGRESP.
func (k *keepAliveScheduler) PingPending() bool {
	return k.pingPending
}

// Check returns the action due at now. A zero interval disables keep alive.
func (k *keepAliveScheduler) Check(now time.Time) keepAliveAction {
	if k.interval <= 0 {
		return keepAliveIdle
	}

	if k.pingPending {
		if now.Sub(k.pingSentAt) >= pingTimeoutFactor*k.interval {
			return keepAliveTimeout
		}
		return keepAliveIdle
	}

	pingAfter := k.interval * pingAfterNumerator / pingAfterDenominator

	if now.Sub(k.lastOutbound) >= pingAfter {
		return keepAliveSendPing
	}

	if now.Sub(k.lastInbound) >= pingAfter {
		return keepAliveSendPing
	}

	return keepAliveIdle
}
