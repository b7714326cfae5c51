// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"time"
)

// Login throttling configuration.
const (
	// LockoutDuration is the time an account stays locked after too many
	// consecutive failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that triggers
	// a lockout.
	LockoutThreshold = 7
)

// LockoutState describes the throttling state of an account.
type LockoutState struct {
	// Delay is the suggested wait before another attempt is allowed.
	Delay time.Duration

	// Locked indicates the account is temporarily locked.
	Locked bool

	// Remaining is the time until the lockout expires.
	Remaining time.Duration
}

// CheckFailures evaluates the throttling state for a failure count.
// lockedUntil is the current lockout timestamp (nil if not locked).
func CheckFailures(failures int, lockedUntil *time.Time) LockoutState {
	state := LockoutState{}

	if IsLockedOut(lockedUntil) {
		state.Locked = true
		state.Remaining = time.Until(*lockedUntil)
		return state
	}

	// Progressive delay: 2^(failures-1) seconds, capped at 32s.
	if failures > 0 && failures < LockoutThreshold {
		state.Delay = time.Duration(1<<(failures-1)) * time.Second
		if state.Delay > 32*time.Second {
			state.Delay = 32 * time.Second
		}
	}

	if failures >= LockoutThreshold {
		state.Locked = true
		state.Remaining = LockoutDuration
	}

	return state
}

// IsLockedOut returns true if the lockout time is in the future.
func IsLockedOut(lockedUntil *time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(time.Now())
}

// ComputeLockoutTime returns the lockout timestamp for the given failure
// count, or nil below the threshold.
func ComputeLockoutTime(failures int) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	lockout := time.Now().Add(LockoutDuration)
	return &lockout
}
