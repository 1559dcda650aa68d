package auth

import "time"

// Scheduler runs a function after a delay. Scheduled actions are never
// cancelled explicitly; anything armed through here must guard itself
// against having been superseded by the time it fires (the registry's
// epoch check).
type Scheduler interface {
	Schedule(d time.Duration, fn func())
}

// TimerScheduler is the production Scheduler.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
