package room

import "time"

// DefaultRetryWindow is the minimum spacing between two error-triggered disconnects
// for the second one to still be retried.
const DefaultRetryWindow = 5 * time.Second

// RetryGovernor decides whether an error-terminated session may be retried.
type RetryGovernor struct {
	Window time.Duration
}

func NewRetryGovernor(window time.Duration) RetryGovernor {
	if window <= 0 {
		window = DefaultRetryWindow
	}
	return RetryGovernor{Window: window}
}

// Allow reports whether a retry is permitted at now given the last recorded failure.
// A zero last means no failure has been recorded yet.
func (g RetryGovernor) Allow(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= g.Window
}
