package domain

import "time"

type LifecycleKind string

const (
	LifecycleCreated LifecycleKind = "created"
	LifecycleStarted LifecycleKind = "started"
	LifecycleEnded   LifecycleKind = "ended"
)

// LifecycleEvent describes one committed meeting state transition.
type LifecycleEvent struct {
	Kind    LifecycleKind
	Meeting Meeting
	Reason  EndReason
	Actor   string
	At      time.Time
}
