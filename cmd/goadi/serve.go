package main

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/httpapi"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
	"github.com/rjboer/GoADI/internal/parts"
	"github.com/rjboer/GoADI/internal/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var offline, track bool
	var radio parts.RadioConfig
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the context and live calibration telemetry over HTTP",
		Long: `serve exposes the context attributes and registers under /api/devices and the
calibration history under /api/cal (websocket feed at /api/cal/live). With
--track the CN0566 beam is swept continuously and each sweep is streamed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			hub := telemetry.NewHub(a.cfg.Server.HistoryLimit, a.logger)

			var c *iio.Context
			if !offline {
				var err error
				c, err = a.open(ctx)
				if err != nil {
					return err
				}
				defer c.Close()
			}
			if track {
				if c == nil {
					return errors.New("--track needs a context")
				}
				p, err := a.phaser(ctx, c, radio)
				if err != nil {
					return err
				}
				go a.trackLoop(ctx, p, hub)
			}
			return httpapi.New(c, hub, a.logger).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&offline, "offline", false, "serve telemetry only, without a context")
	cmd.Flags().BoolVar(&track, "track", false, "sweep the CN0566 beam continuously")
	radioFlags(cmd, &radio)
	return cmd
}

// trackLoop sweeps until ctx is done, feeding every point to hub. Each sweep
// is its own run.
func (a *app) trackLoop(ctx context.Context, p *parts.CN0566, hub *telemetry.Hub) {
	log := a.logger.With(logging.F("component", "tracker"))
	for ctx.Err() == nil {
		run := uuid.NewString()
		res, err := p.BeamSweep(ctx, calib.WithRun(run, hub))
		if err != nil {
			if ctx.Err() == nil {
				log.Error("beam sweep failed", logging.Err(err))
			}
			return
		}
		log.Debug("sweep", logging.F("run", run), logging.F("peak_deg", res.PeakAngle()), logging.F("peak_dbfs", res.SumDB[res.Peak]))
	}
}
