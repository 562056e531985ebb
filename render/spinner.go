package render

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerFrames are the default animation frames.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// asciiFrames are the fallback for terminals without Unicode.
var asciiFrames = []string{"/", "-", "\\", "|"}

// Spinner animates a short status line while the model is thinking.
type Spinner struct {
	out     io.Writer
	message string
	frames  []string
	current int
	done    chan struct{}
	once    sync.Once
	style   lipgloss.Style
}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:     out,
		message: message,
		frames:  SpinnerFrames,
		done:    make(chan struct{}),
		style: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}),
	}
}

// SetFrames replaces the animation frames.
func (s *Spinner) SetFrames(frames []string) *Spinner {
	if len(frames) > 0 {
		s.frames = frames
	}
	return s
}

// ASCII switches to the plain-terminal frame set.
func (s *Spinner) ASCII() *Spinner {
	return s.SetFrames(asciiFrames)
}

// Start begins the animation.
func (s *Spinner) Start() {
	go s.run()
}

func (s *Spinner) run() {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			frame := s.frames[s.current%len(s.frames)]
			s.current++
			fmt.Fprintf(s.out, "\r%s %s", s.style.Render(frame), s.message)
		}
	}
}

// Stop ends the animation and clears the line. Safe to call twice.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		fmt.Fprintf(s.out, "\r\033[K")
	})
}
