package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/progress"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Probe events go to debug since there is one per USN.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("job_id", evt.JobUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Year != "" {
			fields = append(fields, zap.String("year", evt.Year))
		}
		if evt.Branch != "" {
			fields = append(fields, zap.String("branch", evt.Branch))
		}
		if evt.USN != "" {
			fields = append(fields, zap.String("usn", evt.USN))
		}
		if evt.Outcome != "" {
			fields = append(fields, zap.String("outcome", evt.Outcome))
		}
		if evt.Path != "" {
			fields = append(fields, zap.String("path", evt.Path))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		fields = append(fields, zap.Int64("processed", evt.Processed), zap.Duration("dur", evt.Dur))

		switch evt.Stage {
		case progress.StageProbe:
			s.logger.Debug("progress event", fields...)
		case progress.StageJobError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
