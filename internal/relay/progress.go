package relay

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const barWidth = 30

// ProgressBar renders chunk transfer progress on one terminal line
type ProgressBar struct {
	out     io.Writer
	total   int
	current int
	mu      sync.Mutex
}

// NewProgressBar creates a bar for total steps writing to out
func NewProgressBar(out io.Writer, total int) *ProgressBar {
	return &ProgressBar{out: out, total: total}
}

// Update redraws the bar at current
func (pb *ProgressBar) Update(current, total int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.current = current
	if total > 0 {
		pb.total = total
	}
	if pb.total <= 0 {
		return
	}

	percent := float64(pb.current) / float64(pb.total) * 100
	filled := min(int(float64(barWidth)*percent/100), barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(pb.out, "\r   [%s] %d/%d (%.1f%%)", bar, pb.current, pb.total, percent)
}

// Finish ends the progress line
func (pb *ProgressBar) Finish() {
	fmt.Fprintln(pb.out)
}
