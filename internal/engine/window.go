// Package engine implements the authoritative market engine: the round
// ledger, settlement classification, pull-based claims, and the access and
// reentrancy rules around them. The engine owns the current round in
// memory and writes through to the stores; frozen results in the round
// store are the sole source of truth for claims.
package engine

import "time"

// BettingOpen reports whether stakes are accepted at now. The window runs
// from the last settlement until cutoffLead before the next one; the
// boundary instant itself counts as closed. A halted market (paused or in
// safe mode) is always closed.
func BettingOpen(now, lastSettlement time.Time, interval, cutoffLead time.Duration, halted bool) bool {
	if halted {
		return false
	}
	return now.Before(lastSettlement.Add(interval - cutoffLead))
}

// UntilBettingClose returns the time remaining before the betting window
// shuts, floored at zero once the boundary has passed.
func UntilBettingClose(now, lastSettlement time.Time, interval, cutoffLead time.Duration) time.Duration {
	return remaining(now, lastSettlement.Add(interval-cutoffLead))
}

// UntilSettlement returns the time remaining before the round becomes
// settleable, floored at zero.
func UntilSettlement(now, lastSettlement time.Time, interval time.Duration) time.Duration {
	return remaining(now, lastSettlement.Add(interval))
}

func remaining(now, deadline time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}
