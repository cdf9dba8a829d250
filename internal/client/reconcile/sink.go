package reconcile

import "github.com/dkeye/WatchSync/internal/domain"

// MediaSink is the local media element, consumed only as an I/O sink.
// Play may fail with domain.ErrAutoplayBlocked when the platform wants a
// user gesture first.
type MediaSink interface {
	Ready() bool
	CurrentTime() float64
	Paused() bool
	Rate() float64
	Seek(seconds float64)
	Play() error
	Pause()
	SetRate(rate float64)
}

type EventKind string

const (
	EventPlay       EventKind = "play"
	EventPause      EventKind = "pause"
	EventSeeked     EventKind = "seeked"
	EventRateChange EventKind = "ratechange"
)

// MediaEvent is a notification from the sink. Trusted is set only for
// events caused by genuine user interaction.
type MediaEvent struct {
	Kind        EventKind
	Trusted     bool
	TimeSeconds float64
	Rate        float64
}

// Outbound carries user actions to the server.
type Outbound interface {
	SendAction(t domain.ActionType, timeSeconds *float64, rate float64)
}
