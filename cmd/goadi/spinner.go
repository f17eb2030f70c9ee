package main

import (
	"io"
	"os"
	"time"

	"github.com/theckman/yacspin"
)

// spinner shows progress on a terminal. Without one it stays silent, so
// tests and piped output see only the command results.
type spinner struct {
	sp *yacspin.Spinner
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func newSpinner(w io.Writer, suffix string) *spinner {
	if !isTerminal(w) {
		return &spinner{}
	}
	sp, err := yacspin.New(yacspin.Config{
		Writer:            w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + suffix,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return &spinner{}
	}
	return &spinner{sp: sp}
}

func (s *spinner) start() {
	if s.sp != nil {
		_ = s.sp.Start()
	}
}

func (s *spinner) message(msg string) {
	if s.sp != nil {
		s.sp.Message(msg)
	}
}

func (s *spinner) stop(msg string) {
	if s.sp != nil {
		s.sp.StopMessage(msg)
		_ = s.sp.Stop()
	}
}

func (s *spinner) fail(msg string) {
	if s.sp != nil {
		s.sp.StopFailMessage(msg)
		_ = s.sp.StopFail()
	}
}
