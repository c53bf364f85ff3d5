package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// spinner implements SpinnerHandle
type spinner struct {
	id      string
	message string
	style   SpinnerStyle
	active  bool
	writer  io.Writer
	colors  ColorSystem
	theme   ColorTheme
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.RWMutex
}

func (s *spinner) ID() string {
	return s.id
}

func (s *spinner) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *spinner) start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.animate()
}

func (s *spinner) stop(finalMessage string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	fmt.Fprint(s.writer, "\r\033[K")
	if finalMessage != "" {
		fmt.Fprintln(s.writer, finalMessage)
	}
}

func (s *spinner) updateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

func (s *spinner) animate() {
	defer close(s.doneCh)

	ticker := time.NewTicker(time.Duration(s.style.Delay) * time.Millisecond)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			glyph := s.style.Frames[frame%len(s.style.Frames)]
			message := s.message
			s.mu.RUnlock()

			if s.colors != nil {
				glyph = s.colors.Colorize(glyph, s.theme.Primary)
			}
			fmt.Fprintf(s.writer, "\r\033[K%s %s", glyph, message)
		}
	}
}

// noOpSpinner is returned when progress output is disabled
type noOpSpinner struct{}

func (noOpSpinner) ID() string     { return "" }
func (noOpSpinner) IsActive() bool { return false }

// spinnerManager tracks running spinners by ID
type spinnerManager struct {
	spinners map[string]*spinner
	counter  int
	mu       sync.Mutex
}

func newSpinnerManager() *spinnerManager {
	return &spinnerManager{spinners: make(map[string]*spinner)}
}

func (sm *spinnerManager) create(message string, style SpinnerStyle, writer io.Writer, colors ColorSystem, theme ColorTheme) *spinner {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.counter++
	s := &spinner{
		id:      fmt.Sprintf("spinner_%d", sm.counter),
		message: message,
		style:   style,
		writer:  writer,
		colors:  colors,
		theme:   theme,
	}
	sm.spinners[s.id] = s
	return s
}

func (sm *spinnerManager) get(handle SpinnerHandle) *spinner {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.spinners[handle.ID()]
}

func (sm *spinnerManager) remove(handle SpinnerHandle) {
	sm.mu.Lock()
	delete(sm.spinners, handle.ID())
	sm.mu.Unlock()
}

// ProgressBar renders a single-line progress bar. A nil writer discards
// output, so a bar can be driven unconditionally.
type ProgressBar struct {
	current int
	total   int
	message string
	width   int
	writer  io.Writer
	colors  ColorSystem
	theme   ColorTheme
	mu      sync.Mutex
}

const (
	maxBarWidth = 40
	minBarWidth = 10
)

// barWidth leaves room for the percentage and a short message on narrow
// terminals
func barWidth() int {
	width := terminalWidth()
	if width == 0 {
		return maxBarWidth
	}
	return max(minBarWidth, min(maxBarWidth, width/2-10))
}

// NewProgressBar creates a bar sized to the terminal
func NewProgressBar(total int, message string, writer io.Writer, colors ColorSystem, theme ColorTheme) *ProgressBar {
	return &ProgressBar{
		total:   total,
		message: message,
		width:   barWidth(),
		writer:  writer,
		colors:  colors,
		theme:   theme,
	}
}

// Update sets the current value and, when non-empty, the message
func (pb *ProgressBar) Update(current int, message string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
	if message != "" {
		pb.message = message
	}
	pb.render()
}

// Finish completes the bar and ends the line
func (pb *ProgressBar) Finish(finalMessage string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	if finalMessage != "" {
		pb.message = finalMessage
	}
	pb.render()
	if pb.writer != nil {
		fmt.Fprintln(pb.writer)
	}
}

// Func adapts the bar to percentage callbacks such as the engines report
func (pb *ProgressBar) Func() func(percent int, message string) {
	return pb.Update
}

// Line returns the current rendering without the carriage return
func (pb *ProgressBar) Line() string {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.line()
}

func (pb *ProgressBar) render() {
	if pb.writer == nil || pb.total <= 0 {
		return
	}
	fmt.Fprint(pb.writer, "\r"+pb.line())
}

func (pb *ProgressBar) line() string {
	if pb.total <= 0 {
		return pb.message
	}
	current := pb.current
	if current > pb.total {
		current = pb.total
	}
	if current < 0 {
		current = 0
	}
	filledWidth := pb.width * current / pb.total
	filled := strings.Repeat("█", filledWidth)
	empty := strings.Repeat("░", pb.width-filledWidth)
	if pb.colors != nil {
		filled = pb.colors.Colorize(filled, pb.theme.Success)
		empty = pb.colors.Colorize(empty, pb.theme.Muted)
	}
	percentage := float64(current) / float64(pb.total) * 100
	return fmt.Sprintf("[%s%s] %5.1f%% %s", filled, empty, percentage, pb.message)
}
