package events

import "github.com/fnordcredit/fnordcredit/pkg/log"

// LogSink forwards events to a structured logger: log events at info level,
// error events at error level.
func LogSink(logger log.Logger) Handler {
	return HandlerFunc(func(e Event) {
		fields := []log.Field{log.String("op", e.Op)}
		if e.Path != "" {
			fields = append(fields, log.String("path", e.Path))
		}

		switch e.Kind {
		case KindError:
			if e.Err != nil {
				fields = append(fields, log.Err(e.Err))
			}
			logger.Error(e.String(), fields...)
		default:
			logger.Info(e.String(), fields...)
		}
	})
}
