package port

import "kitefeed/internal/domain/model"

// Status levels for EventSink.Status.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// EventSink delivers session events to exactly one client. Implementations
// must not block the caller; a slow client is the sink's problem.
type EventSink interface {
	Status(level, message string) error
	Ticks(batch []Tick) error
	Metrics(set []model.DerivedMetric) error
}
