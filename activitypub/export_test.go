package activitypub

import "time"

// SetNow swaps the signature clock until the returned func is called.
func SetNow(f func() time.Time) func() {
	old := now
	now = f
	return func() { now = old }
}
