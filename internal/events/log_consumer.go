package events

import (
	"github.com/tphakala/camcore/internal/logger"
)

// LogConsumer writes every event to the structured log. Luminosity samples
// go to debug, failures to warn and the rest to info.
type LogConsumer struct {
	log logger.Logger
}

// NewLogConsumer creates a consumer logging to log, or to the events module logger when nil
func NewLogConsumer(log logger.Logger) *LogConsumer {
	if log == nil {
		log = GetLogger()
	}
	return &LogConsumer{log: log}
}

// Name implements Consumer
func (c *LogConsumer) Name() string { return "log" }

// Consume implements Consumer
func (c *LogConsumer) Consume(ev Event) error {
	fields := []logger.Field{logger.String("type", string(ev.Type))}
	if ev.MediaID != "" {
		fields = append(fields, logger.String("media_id", ev.MediaID))
	}
	if ev.RecordingID != "" {
		fields = append(fields, logger.String("recording_id", ev.RecordingID))
	}
	if ev.Location != "" {
		fields = append(fields, logger.String("location", ev.Location))
	}

	switch {
	case ev.Type == TypeLuminosity:
		c.log.Debug("luminosity",
			logger.Float64("mean", ev.Luminosity),
			logger.Uint64("sequence", ev.Sequence))
	case ev.Failed():
		c.log.Warn("camera event", append(fields, logger.String("error", ev.Error))...)
	default:
		c.log.Info("camera event", fields...)
	}
	return nil
}
