package main

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/instrument"
	"github.com/rjboer/GoADI/internal/remote"
)

func (a *app) dialSCPI(ctx context.Context, addr string) (*instrument.SCPI, error) {
	ic := a.cfg.Instruments
	opts := []instrument.Option{instrument.WithLogger(a.logger)}
	if ic.Timeout > 0 {
		opts = append(opts, instrument.WithTimeout(ic.Timeout))
	}
	if ic.Interval > 0 {
		opts = append(opts, instrument.WithInterval(ic.Interval))
	}
	return instrument.Dial(ctx, addr, opts...)
}

// analyzer connects to the spectrum analyzer and centres it on the
// configured tone.
func (a *app) analyzer(ctx context.Context) (*instrument.N9000A, error) {
	ic := a.cfg.Instruments
	if ic.Analyzer == "" {
		return nil, fmt.Errorf("%w: no spectrum analyzer configured (instruments.analyzer)", iio.ErrInvalidValue)
	}
	s, err := a.dialSCPI(ctx, ic.Analyzer)
	if err != nil {
		return nil, err
	}
	sa := instrument.NewN9000A(s)
	sa.Settle = a.cfg.Calibration.Null.Settle
	if ic.Center > 0 {
		if err := sa.SetCenter(ctx, ic.Center); err != nil {
			s.Close()
			return nil, err
		}
	}
	if ic.Span > 0 {
		if err := sa.SetSpan(ctx, ic.Span); err != nil {
			s.Close()
			return nil, err
		}
	}
	n := sa.Marker
	if err := sa.MarkerMode(ctx, n, "POS"); err != nil {
		s.Close()
		return nil, err
	}
	if err := sa.ContinuousPeakSearch(ctx, n, true); err != nil {
		s.Close()
		return nil, err
	}
	return sa, nil
}

// supply connects to the bench supply, or returns nil when none is configured.
func (a *app) supply(ctx context.Context) (*instrument.Supply, error) {
	ic := a.cfg.Instruments
	if ic.Supply == "" {
		return nil, nil
	}
	s, err := a.dialSCPI(ctx, ic.Supply)
	if err != nil {
		return nil, err
	}
	switch strings.ToUpper(ic.SupplyModel) {
	case "N6705B":
		return instrument.NewN6705B(s), nil
	case "E36233A", "":
		return instrument.NewE36233A(s), nil
	}
	s.Close()
	return nil, fmt.Errorf("%w: supply model %q", iio.ErrInvalidValue, ic.SupplyModel)
}

// sshHost is the configured SSH host, falling back to the context URI host.
func (a *app) sshHost() (string, error) {
	if a.cfg.SSH.Host != "" {
		return a.cfg.SSH.Host, nil
	}
	u, err := iio.ParseURI(a.cfg.Context.URI)
	if err != nil {
		return "", err
	}
	addr := u.Address
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		addr = addr[i+1:]
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" || (u.Scheme != iio.SchemeIP && u.Scheme != iio.SchemeSSH) {
		return "", fmt.Errorf("%w: no SSH host for %s (set ssh.host)", iio.ErrInvalidValue, u)
	}
	return addr, nil
}

func (a *app) remote(ctx context.Context) (*remote.Client, error) {
	host, err := a.sshHost()
	if err != nil {
		return nil, err
	}
	sc := a.cfg.SSH
	return remote.Dial(ctx, remote.Config{
		Host:     host,
		Port:     sc.Port,
		User:     sc.User,
		Password: sc.Password,
		KeyPath:  sc.KeyPath,
		Timeout:  a.cfg.Context.Timeout,
	}, a.logger)
}

func (a *app) rails() []calib.Rail {
	out := make([]calib.Rail, 0, len(a.cfg.Instruments.Rails))
	for _, r := range a.cfg.Instruments.Rails {
		out = append(out, calib.Rail{Channel: r.Channel, Voltage: r.Voltage, Current: r.Current})
	}
	return out
}

func (a *app) nullConfig() calib.NullConfig {
	n := a.cfg.Calibration.Null
	return calib.NullConfig{
		CoarseStart: n.CoarseStart,
		CoarseStop:  n.CoarseStop,
		CoarseStep:  n.CoarseStep,
		FineRange:   n.FineRange,
		FineLimit:   n.FineLimit,
	}
}
