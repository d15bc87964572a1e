// Package applog bootstraps the process-wide zerolog logger and provides a
// TTY-aware progress indicator used by the seed command.
package applog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Bootstrap configures the global zerolog logger: a human-readable console
// writer for an interactive TTY, plain JSON lines otherwise (e.g. under a
// process supervisor), controllable via ZEROLOG_FORMAT=json|console.
func Bootstrap() {
	zerolog.TimeFieldFormat = time.RFC3339

	format := os.Getenv("ZEROLOG_FORMAT")
	useConsole := format == "console" || (format == "" && term.IsTerminal(int(os.Stderr.Fd())))
	if useConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			zerolog.SetGlobalLevel(parsed)
		}
	}
}

// IsInteractive reports whether stderr is attached to a terminal, the
// signal the seeders use to decide between a spinner and plain log lines.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

var spinnerChars = []string{"|", "/", "-", "\\"}

// Spinner prints a rotating character plus a progress count to stderr,
// intended for long-running seed commands run from an interactive shell.
type Spinner struct {
	mu      sync.Mutex
	name    string
	total   int
	current int
	frame   int
}

func NewSpinner(name string, total int) *Spinner {
	return &Spinner{name: name, total: total}
}

// Tick advances the spinner by one unit of work and redraws the line.
func (s *Spinner) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	s.frame = (s.frame + 1) % len(spinnerChars)
	fmt.Fprintf(os.Stderr, "\r%s %s %d/%d", spinnerChars[s.frame], s.name, s.current, s.total)
}

// Finish clears the spinner line and prints a completion summary.
func (s *Spinner) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(os.Stderr, "\r%s%s done (%d/%d)\n", strings.Repeat(" ", len(s.name)+10), s.name, s.current, s.total)
}
