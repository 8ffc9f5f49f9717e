// Package progress renders the lifecycle of a run on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/felixgeelhaar/watts/internal/checkpoint"
)

// IsTerminal reports whether w writes to an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Indicator follows the checkpoint state of a run. On a terminal it shows a
// spinner with the current phase; elsewhere it prints one line per update.
type Indicator struct {
	writer      io.Writer
	label       string
	state       *checkpoint.State
	startTime   time.Time
	mu          sync.Mutex
	showSpinner bool
	spinnerIdx  int
	stopChan    chan struct{}
	stopOnce    sync.Once
	plain       bool
}

// Config holds configuration for progress indicator
type Config struct {
	Writer io.Writer
	// Label prefixes every line, typically the plugin name.
	Label       string
	ShowSpinner bool
	// Plain forces line-per-update output. It is implied in CI and when
	// Writer is not a terminal.
	Plain bool
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewIndicator creates a new progress indicator
func NewIndicator(cfg Config) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if !cfg.Plain {
		cfg.Plain = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" || !IsTerminal(cfg.Writer)
	}

	return &Indicator{
		writer:      cfg.Writer,
		label:       cfg.Label,
		startTime:   time.Now(),
		showSpinner: cfg.ShowSpinner && !cfg.Plain,
		stopChan:    make(chan struct{}),
		plain:       cfg.Plain,
	}
}

// Start begins the progress indicator display
func (p *Indicator) Start() {
	if p.showSpinner {
		go p.spinnerLoop()
	}
}

// Stop stops the progress indicator
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		if p.showSpinner {
			close(p.stopChan)
			p.mu.Lock()
			fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", 80))
			p.mu.Unlock()
		}
	})
}

// Observe records an update of task in state. It matches the observer hook
// of plugin.InvokeOptions.
func (p *Indicator) Observe(state *checkpoint.State, task string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = state
	if p.plain {
		if t, ok := state.Task(task); ok {
			p.printTaskStatus(t)
		}
	}
}

func (p *Indicator) spinnerLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.renderProgress()
			p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
			p.mu.Unlock()
		}
	}
}

func (p *Indicator) renderProgress() {
	if p.state == nil {
		return
	}
	phase := "starting"
	if t, ok := p.state.Current(); ok {
		phase = t.ID
	}
	done := int(p.state.Progress()*float64(len(p.state.Tasks)) + 0.5)

	fmt.Fprintf(p.writer, "\r%s %s %s [%d/%d] %s",
		spinnerFrames[p.spinnerIdx],
		p.label,
		phase,
		done,
		len(p.state.Tasks),
		formatDuration(time.Since(p.startTime)),
	)
}

func (p *Indicator) printTaskStatus(t checkpoint.Task) {
	symbol := "⟲"
	switch t.Status {
	case checkpoint.StatusRunning:
		symbol = "▶"
	case checkpoint.StatusCompleted:
		symbol = "✓"
	case checkpoint.StatusFailed:
		symbol = "✗"
	}

	msg := fmt.Sprintf("%s %s %s [%s]", symbol, p.label, t.ID, t.Status)
	if t.Status.Terminal() && t.Duration() > 0 {
		msg += " " + formatDuration(t.Duration())
	}
	if t.Error != "" {
		msg += " - " + firstLine(t.Error)
	}
	fmt.Fprintln(p.writer, msg)
}

// PrintSummary prints the phases of the run with their outcome.
func (p *Indicator) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == nil {
		return
	}

	fmt.Fprintln(p.writer, "───────────────────────────────────────────────")
	fmt.Fprintf(p.writer, "%s run %s\n", p.label, p.state.Status)
	fmt.Fprintln(p.writer, "───────────────────────────────────────────────")
	for _, t := range p.state.Tasks {
		line := fmt.Sprintf("  %-8s %-10s", t.ID, t.Status)
		if d := t.Duration(); d > 0 {
			line += " " + formatDuration(d)
		}
		fmt.Fprintln(p.writer, strings.TrimRight(line, " "))
		if t.Error != "" {
			fmt.Fprintf(p.writer, "           %s\n", firstLine(t.Error))
		}
	}
	fmt.Fprintf(p.writer, "Total Time: %s\n", formatDuration(time.Since(p.startTime)))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// StreamWriter wraps an io.Writer to stream output with prefixes
type StreamWriter struct {
	writer io.Writer
	prefix string
	buffer []byte
}

// NewStreamWriter creates a new stream writer with a prefix
func NewStreamWriter(w io.Writer, prefix string) *StreamWriter {
	return &StreamWriter{
		writer: w,
		prefix: prefix,
		buffer: make([]byte, 0, 4096),
	}
}

// Write implements io.Writer
func (sw *StreamWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	sw.buffer = append(sw.buffer, p...)

	for {
		idx := strings.IndexByte(string(sw.buffer), '\n')
		if idx == -1 {
			break
		}

		line := sw.buffer[:idx]
		sw.buffer = sw.buffer[idx+1:]

		_, err = fmt.Fprintf(sw.writer, "%s %s\n", sw.prefix, string(line))
		if err != nil {
			return
		}
	}

	return
}

// Flush writes any remaining buffered content
func (sw *StreamWriter) Flush() error {
	if len(sw.buffer) > 0 {
		_, err := fmt.Fprintf(sw.writer, "%s %s\n", sw.prefix, string(sw.buffer))
		sw.buffer = sw.buffer[:0]
		return err
	}
	return nil
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// BarIndicator is a progress bar over a fixed number of items, used when
// archiving several runs.
type BarIndicator struct {
	writer    io.Writer
	total     int
	completed int
	failed    int
	startTime time.Time
	mu        sync.Mutex
}

// NewBarIndicator creates a simple progress bar
func NewBarIndicator(w io.Writer, total int) *BarIndicator {
	if w == nil {
		w = os.Stderr
	}
	return &BarIndicator{
		writer:    w,
		total:     total,
		startTime: time.Now(),
	}
}

// Increment increments the progress counter
func (b *BarIndicator) Increment(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.completed++
	} else {
		b.failed++
	}

	b.render()
}

func (b *BarIndicator) render() {
	if b.total == 0 {
		return
	}
	progress := float64(b.completed+b.failed) / float64(b.total)
	barWidth := 40
	filled := int(float64(barWidth) * progress)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(b.writer, "\r[%s] %.0f%% | %d/%d | ✓ %d | ✗ %d | %s",
		bar,
		progress*100,
		b.completed+b.failed,
		b.total,
		b.completed,
		b.failed,
		formatDuration(time.Since(b.startTime)),
	)
}

// Finish completes the progress bar
func (b *BarIndicator) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	fmt.Fprintln(b.writer)
}
