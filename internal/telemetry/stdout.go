package telemetry

import (
	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/logging"
)

// StdoutReporter logs each sweep point.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a reporter on the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	return StdoutReporter{logger: logging.Or(logger)}
}

func (r StdoutReporter) Report(p calib.Point) {
	fields := []logging.Field{
		logging.F("subsystem", "telemetry"),
		logging.F("stage", p.Stage),
		logging.F("phase_deg", p.Phase),
		logging.F("power", p.Power),
	}
	if p.Element != 0 {
		fields = append(fields, logging.F("element", p.Element))
	}
	if p.Run != "" {
		fields = append(fields, logging.F("run", p.Run))
	}
	r.logger.Debug("sweep point", fields...)
}
