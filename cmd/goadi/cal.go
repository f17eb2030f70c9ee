package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
	"github.com/rjboer/GoADI/internal/parts"
	"github.com/rjboer/GoADI/internal/plotting"
	"github.com/rjboer/GoADI/internal/telemetry"
)

// Report shows sweep progress on the spinner line.
func (s *spinner) Report(p calib.Point) {
	if p.Element != 0 {
		s.message(fmt.Sprintf("%s element %d phase %.2f power %.2f", p.Stage, p.Element, p.Phase, p.Power))
		return
	}
	s.message(fmt.Sprintf("%s phase %.2f power %.2f", p.Stage, p.Phase, p.Power))
}

// reporter fans progress out to the spinner and the log, tagging points with
// a fresh run id unless the routine already set one.
func (a *app) reporter(sp *spinner) calib.Reporter {
	return calib.WithRun(uuid.NewString(), telemetry.MultiReporter{sp, telemetry.NewStdoutReporter(a.logger)})
}

// txRoutine builds the TX calibration from the loaded configuration. Bench
// hardware is attached by the caller.
func (a *app) txRoutine() *calib.TxCalRoutine {
	cc := a.cfg.Calibration
	return &calib.TxCalRoutine{
		Rails:     a.rails(),
		BootCmd:   cc.BootCmd,
		Stdout:    a.out,
		Stderr:    a.errOut,
		Reference: cc.Reference,
		PABias:    cc.PABias,
		Null:      a.nullConfig(),
		TablePath: a.calPath("tx_phase_cal.json"),
		Logger:    a.logger,
	}
}

func (a *app) calPath(name string) string {
	return filepath.Join(a.cfg.Calibration.Dir, name)
}

func newCalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cal",
		Short: "Phased-array calibration routines",
	}
	cmd.AddCommand(
		newCalGainCodesCmd(a),
		newCalNullCmd(a),
		newCalTxCmd(a),
		newCalPhaserCmd(a),
		newCalSweepCmd(a),
		newCalPatternCmd(a),
	)
	return cmd
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, s := range args {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", iio.ErrInvalidValue, s)
		}
		out[i] = v
	}
	return out, nil
}

func newCalGainCodesCmd(a *app) *cobra.Command {
	var mode string
	var apply bool
	cmd := &cobra.Command{
		Use:   "gaincodes <dB>...",
		Short: "Convert measured element levels to VGA gain codes",
		Long: `gaincodes equalises elements: each level (dB) is compared with the weakest
element and the difference is absorbed by the VGA and, past 23 dB, the step
attenuator. Levels are given in element order 1..N. With --apply the RX codes
are written to the phaser array.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mags, err := parseFloats(args)
			if err != nil {
				return err
			}
			codes, err := calib.GainCodes(mags, calib.Mode(mode))
			if err != nil {
				return err
			}
			for i, c := range codes {
				fmt.Fprintf(a.out, "element %d: code %d atten %t\n", i+1, c.Code, c.Atten)
			}
			if !apply {
				return nil
			}
			if calib.Mode(mode) != calib.RX {
				return fmt.Errorf("%w: --apply writes RX codes only", iio.ErrInvalidValue)
			}
			return a.withContext(cmd.Context(), func(c *iio.Context) error {
				arr, err := parts.NewADAR1000Array(c, parts.PhaserArrayConfig())
				if err != nil {
					return err
				}
				byElement := make(map[int]calib.GainCode, len(codes))
				for i, gc := range codes {
					byElement[i+1] = gc
				}
				return arr.ApplyRxGainCodes(cmd.Context(), byElement)
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(calib.RX), "polynomial set (rx or tx)")
	cmd.Flags().BoolVar(&apply, "apply", false, "write the codes to the array")
	return cmd
}

func newCalNullCmd(a *app) *cobra.Command {
	var element int
	var plot string
	cmd := &cobra.Command{
		Use:   "null",
		Short: "Null one TX element against the reference on the spectrum analyzer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sa, err := a.analyzer(ctx)
			if err != nil {
				return err
			}
			defer sa.Close()
			return a.withContext(ctx, func(c *iio.Context) error {
				arr, err := parts.NewADAR1000Array(c, parts.PhaserArrayConfig())
				if err != nil {
					return err
				}
				ref := a.cfg.Calibration.Reference
				if err := arr.EnablePA(ctx, ref); err != nil {
					return err
				}
				if err := arr.EnablePA(ctx, element); err != nil {
					return err
				}
				set := calib.PhaseSetterFunc(func(ctx context.Context, deg float64) error {
					if err := arr.SetTxPhase(ctx, element, deg); err != nil {
						return err
					}
					return arr.LatchTx(ctx)
				})
				sp := newSpinner(a.errOut, fmt.Sprintf("nulling element %d", element))
				sp.start()
				cfg := a.nullConfig()
				cfg.Element = element
				cfg.Reporter = a.reporter(sp)
				res, err := calib.NullSearch(ctx, set, sa, cfg)
				if err != nil {
					sp.fail(err.Error())
					return err
				}
				sp.stop(fmt.Sprintf("null %.0f°", res.Null))
				if err := set.SetPhase(ctx, res.Phase); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "element %d: null %.0f° at %.2f dBm, calibrated phase %.0f°\n", element, res.Null, res.NullPower, res.Phase)
				if plot != "" {
					return plotting.SavePNG(plot, func(w io.Writer) error { return plotting.NullSweep(w, res) })
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&element, "element", "e", 2, "element under test")
	cmd.Flags().StringVar(&plot, "plot", "", "write the sweep to this PNG file")
	return cmd
}

func newCalTxCmd(a *app) *cobra.Command {
	var noSupply, noBoot bool
	var plotDir string
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Full TX phase calibration: power up, boot, null every element, save the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			routine := a.txRoutine()
			if !noSupply {
				ps, err := a.supply(ctx)
				if err != nil {
					return err
				}
				if ps != nil {
					defer ps.Close()
					routine.Supply = ps
				}
			}
			if !noBoot {
				rc, err := a.remote(ctx)
				if err != nil {
					return err
				}
				defer rc.Close()
				routine.Runner = rc
			}
			sa, err := a.analyzer(ctx)
			if err != nil {
				return err
			}
			defer sa.Close()
			routine.Meter = sa

			return a.withContext(ctx, func(c *iio.Context) error {
				arr, err := parts.NewADAR1000Array(c, parts.PhaserArrayConfig())
				if err != nil {
					return err
				}
				routine.Array = arr
				sp := newSpinner(a.errOut, "tx calibration")
				routine.Reporter = a.reporter(sp)
				sp.start()
				res, err := routine.Run(ctx)
				if err != nil {
					sp.fail(err.Error())
					return err
				}
				sp.stop(fmt.Sprintf("%d elements", len(res.Results)))
				for _, nr := range res.Results {
					fmt.Fprintf(a.out, "element %d: null %.0f°, phase %.0f°\n", nr.Element, nr.Null, nr.Phase)
					if plotDir == "" {
						continue
					}
					path := filepath.Join(plotDir, fmt.Sprintf("null_element_%d.png", nr.Element))
					if err := plotting.SavePNG(path, func(w io.Writer) error { return plotting.NullSweep(w, nr) }); err != nil {
						return err
					}
				}
				fmt.Fprintf(a.out, "table %s (run %s)\n", routine.TablePath, res.Table.RunID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noSupply, "no-supply", false, "skip the bench supply power-up")
	cmd.Flags().BoolVar(&noBoot, "no-boot", false, "skip the SSH boot script")
	cmd.Flags().StringVar(&plotDir, "plot-dir", "", "write one PNG per element to this directory")
	return cmd
}

// phaser opens the CN0566 with its AD9361 receiver configured for the tone.
func (a *app) phaser(ctx context.Context, c *iio.Context, radio parts.RadioConfig) (*parts.CN0566, error) {
	sdr, err := parts.NewAD9361(c)
	if err != nil {
		return nil, err
	}
	if err := sdr.Configure(ctx, radio); err != nil {
		return nil, err
	}
	p, err := parts.NewCN0566(ctx, c, sdr)
	if err != nil {
		return nil, err
	}
	cc := a.cfg.Calibration
	p.SetAverages(cc.Averages)
	if cc.PhaseStep > 0 {
		p.PhaseStep = cc.PhaseStep
	}
	if cc.SignalFreq > 0 {
		p.SignalFreq = cc.SignalFreq
	}
	if err := p.Configure(ctx, parts.ModeRx); err != nil {
		return nil, err
	}
	if err := p.LoadGainCal(a.calPath("gain_cal.json")); err != nil {
		return nil, err
	}
	if err := p.LoadPhaseCal(a.calPath("phase_cal.json")); err != nil {
		return nil, err
	}
	return p, nil
}

func radioFlags(cmd *cobra.Command, r *parts.RadioConfig) {
	f := cmd.Flags()
	f.Float64Var(&r.SampleRate, "sample-rate", 30e6, "AD9361 sample rate (Hz)")
	f.Float64Var(&r.RxLO, "rx-lo", 2.2e9, "AD9361 RX LO (Hz)")
	f.StringVar(&r.GainMode, "gain-mode", "manual", "AD9361 gain control mode")
	f.Float64Var(&r.RxGain[0], "rx-gain0", 30, "RX channel 0 hardware gain (dB)")
	f.Float64Var(&r.RxGain[1], "rx-gain1", 30, "RX channel 1 hardware gain (dB)")
	f.IntVar(&r.BufferSize, "buffer", 1024, "samples per capture")
}

func newCalPhaserCmd(a *app) *cobra.Command {
	var radio parts.RadioConfig
	var skipGain, skipPhase bool
	cmd := &cobra.Command{
		Use:   "phaser",
		Short: "CN0566 gain and phase calibration against a boresight tone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withContext(ctx, func(c *iio.Context) error {
				p, err := a.phaser(ctx, c, radio)
				if err != nil {
					return err
				}
				sp := newSpinner(a.errOut, "phaser calibration")
				rep := a.reporter(sp)
				sp.start()
				if !skipGain {
					sp.message("gain")
					res, err := p.RunGainCal(ctx, rep)
					if err != nil {
						sp.fail(err.Error())
						return err
					}
					if err := p.SaveGainCal(a.calPath("gain_cal.json")); err != nil {
						sp.fail(err.Error())
						return err
					}
					a.logger.Info("gain calibration", logging.F("gcal", res.Gcal), logging.F("peak_dbfs", res.PeakDBFS))
				}
				if !skipPhase {
					sp.message("phase")
					res, err := p.RunPhaseCal(ctx, rep)
					if err != nil {
						sp.fail(err.Error())
						return err
					}
					if err := p.SavePhaseCal(a.calPath("phase_cal.json")); err != nil {
						sp.fail(err.Error())
						return err
					}
					a.logger.Info("phase calibration", logging.F("pcal", res.Pcal))
				}
				sp.stop("done")
				out := struct {
					Gain  []float64 `json:"gain_cal"`
					Phase []float64 `json:"phase_cal"`
				}{p.GainCal(), p.PhaseCal()}
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	radioFlags(cmd, &radio)
	cmd.Flags().BoolVar(&skipGain, "skip-gain", false, "keep the stored gain calibration")
	cmd.Flags().BoolVar(&skipPhase, "skip-phase", false, "keep the stored phase calibration")
	return cmd
}

func newCalSweepCmd(a *app) *cobra.Command {
	var radio parts.RadioConfig
	var plot string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep the CN0566 beam and report the direction of arrival",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withContext(ctx, func(c *iio.Context) error {
				p, err := a.phaser(ctx, c, radio)
				if err != nil {
					return err
				}
				sp := newSpinner(a.errOut, "beam sweep")
				sp.start()
				res, err := p.BeamSweep(ctx, a.reporter(sp))
				if err != nil {
					sp.fail(err.Error())
					return err
				}
				sp.stop(fmt.Sprintf("peak %.1f°", res.PeakAngle()))
				fmt.Fprintf(a.out, "peak at %.2f° (phase delta %.2f°, %.2f dBFS)\n",
					res.PeakAngle(), res.Deltas[res.Peak], res.SumDB[res.Peak])
				if plot != "" {
					return plotting.SavePNG(plot, func(w io.Writer) error { return plotting.BeamSweep(w, res) })
				}
				return nil
			})
		},
	}
	radioFlags(cmd, &radio)
	cmd.Flags().StringVar(&plot, "plot", "", "write the sum and delta beams to this PNG file")
	return cmd
}

func newCalPatternCmd(a *app) *cobra.Command {
	cfg := calib.DefaultPatternConfig()
	var out string
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Render the theoretical 8x8 array pattern to PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pat, err := calib.ArrayPattern(cfg)
			if err != nil {
				return err
			}
			if err := plotting.SavePNG(out, func(w io.Writer) error { return plotting.Pattern(w, pat) }); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s (%d angles)\n", out, len(pat.Angles))
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&cfg.SteerDeg, "steer", 0, "steering angle (deg)")
	f.Float64Var(&cfg.FreqGHz, "freq", cfg.FreqGHz, "frequency (GHz)")
	f.Float64Var(&cfg.Start, "start", cfg.Start, "first angle (deg)")
	f.Float64Var(&cfg.Stop, "stop", cfg.Stop, "last angle (deg)")
	f.Float64Var(&cfg.Step, "step", cfg.Step, "angle step (deg)")
	f.StringVarP(&out, "out", "o", "pattern.png", "output PNG")
	return cmd
}
