// Package clock holds the time-of-day arithmetic used by broadcast clocks,
// a Clock abstraction that lets timers run on virtual time, and countdowns.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedTime is returned for strings that are not H:MM:SS.
	ErrMalformedTime = errors.New("malformed time")
	// ErrNegativeTime is returned for negative second counts.
	ErrNegativeTime = errors.New("negative time")
)

// TimeToSeconds converts an "H:MM:SS" string into a number of seconds.
// Every component must be a non-negative decimal number.
func TimeToSeconds(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}

	var total int
	for i, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrMalformedTime, s, err)
		}
		switch i {
		case 0:
			total += n * 3600
		case 1:
			total += n * 60
		default:
			total += n
		}
	}

	return total, nil
}

// SecondsToTime formats seconds as "H:MM:SS". Hours are not padded.
func SecondsToTime(seconds int) (string, error) {
	if seconds < 0 {
		return "", fmt.Errorf("%w: %d", ErrNegativeTime, seconds)
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60), nil
}

// RemainingTime returns what is left of budget once the time between start
// and now has been spent. All three arguments are same-day H:MM:SS strings.
// The result never goes below zero.
func RemainingTime(budget, start, now string) (string, error) {
	budgetSeconds, err := TimeToSeconds(budget)
	if err != nil {
		return "", fmt.Errorf("budget: %w", err)
	}
	startSeconds, err := TimeToSeconds(start)
	if err != nil {
		return "", fmt.Errorf("start: %w", err)
	}
	nowSeconds, err := TimeToSeconds(now)
	if err != nil {
		return "", fmt.Errorf("now: %w", err)
	}

	remaining := budgetSeconds - (nowSeconds - startSeconds)
	if remaining < 0 {
		remaining = 0
	}
	return SecondsToTime(remaining)
}

// AddMinutes shifts an H:MM:SS time of day forward by the given minutes.
func AddMinutes(s string, minutes int) (string, error) {
	seconds, err := TimeToSeconds(s)
	if err != nil {
		return "", err
	}
	return SecondsToTime(seconds + minutes*60)
}
