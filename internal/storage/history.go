package storage

import (
	"context"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/michaelbrown/toolselector/internal/logging"
	"github.com/michaelbrown/toolselector/internal/tools"
)

// Recorder returns a registry change hook that records every change in s.
// Recording failures are logged and otherwise ignored.
func Recorder(s Store, log *bolt.Logger) func(tools.Change) {
	if log == nil {
		log = logging.Nop()
	}
	return func(c tools.Change) {
		e := &Event{
			Action:  string(c.Action),
			Tools:   c.Tools,
			OK:      c.OK,
			Message: c.Message,
		}
		if err := s.Record(context.Background(), e); err != nil {
			log.Warn().Err(err).Str("action", e.Action).Msg("recording history")
		}
	}
}
