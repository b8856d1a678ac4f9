package main

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	spinnerFrameWidth = 2 // braille frames render about two columns wide
	spinnerAnimDelay  = 80 * time.Millisecond
	spinnerClearPad   = 5
)

// simpleSpinner animates on a TTY while a long operation runs. Off a TTY
// it prints the message once.
type simpleSpinner struct {
	frames   []string
	current  int
	message  string
	done     atomic.Bool
	stopped  chan struct{}
	w        io.Writer
	clearLen int
}

func newSimpleSpinner(w io.Writer, message string) *simpleSpinner {
	return &simpleSpinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message:  message,
		w:        w,
		stopped:  make(chan struct{}),
		clearLen: spinnerFrameWidth + 1 + len(message),
	}
}

func (s *simpleSpinner) Start() {
	if !isTTY() {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		close(s.stopped)
		return
	}

	go func() {
		defer close(s.stopped)
		style := lipgloss.NewStyle().Foreground(colorPrimary)
		for !s.done.Load() {
			frame := s.frames[s.current%len(s.frames)]
			fmt.Fprintf(s.w, "\r%s %s", style.Render(frame), s.message)
			s.current++
			time.Sleep(spinnerAnimDelay)
		}
	}()
}

// Stop halts the animation and clears its line.
func (s *simpleSpinner) Stop() {
	s.done.Store(true)
	<-s.stopped
	if isTTY() {
		fmt.Fprint(s.w, "\r"+strings.Repeat(" ", s.clearLen+spinnerClearPad)+"\r")
	}
}

// runWithSpinner runs operation while a spinner is shown on w. JSON output
// suppresses the spinner.
func runWithSpinner(w io.Writer, message string, operation func() error) error {
	if outputJSON {
		return operation()
	}
	spin := newSimpleSpinner(w, message)
	spin.Start()
	err := operation()
	spin.Stop()
	return err
}
