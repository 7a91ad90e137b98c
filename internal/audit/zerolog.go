package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologSink writes events as structured log lines. Failed events and
// security errors are logged at warn and error level respectively.
type ZerologSink struct {
	log zerolog.Logger
}

func NewZerologSink(l zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: l}
}

func (s *ZerologSink) Emit(_ context.Context, event Event) {
	var e *zerolog.Event
	switch {
	case event.Category == CategorySecurityError || event.Category == CategoryAnomaly:
		e = s.log.Error()
	case !event.Success:
		e = s.log.Warn()
	default:
		e = s.log.Info()
	}

	e = e.Time("event_time", event.Timestamp).
		Str("category", string(event.Category)).
		Str("event_type", event.EventType).
		Bool("success", event.Success)
	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.Email != "" {
		e = e.Str("email", event.Email)
	}
	if event.JTI != "" {
		e = e.Str("jti", event.JTI)
	}
	if event.IP != "" {
		e = e.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", event.UserAgent)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	if len(event.Metadata) > 0 {
		e = e.Interface("metadata", event.Metadata)
	}
	e.Msg("security event")
}
