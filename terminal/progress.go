package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// ProgressBar redraws a single status line per transfer.
type ProgressBar struct {
	out   io.Writer
	width int

	mu      sync.Mutex
	name    string
	started time.Time
	now     func() time.Time
}

// NewProgressBar writes to out. The bar is sized to the terminal when fd
// is one, otherwise it uses 80 columns.
func NewProgressBar(out io.Writer, fd int) *ProgressBar {
	width := 80
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 20 {
			width = w
		}
	}
	return &ProgressBar{out: out, width: width, now: time.Now}
}

// Update is shaped for session.WithProgress.
func (p *ProgressBar) Update(name string, done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name != p.name {
		p.name = name
		p.started = p.now()
	}
	fmt.Fprint(p.out, "\r"+p.line(done, total))
	if total > 0 && done >= total {
		fmt.Fprintln(p.out)
		p.name = ""
	}
}

func (p *ProgressBar) line(done, total int64) string {
	elapsed := p.now().Sub(p.started).Seconds()
	speed := ""
	if elapsed > 0 {
		speed = humanize.IBytes(uint64(float64(done)/elapsed)) + "/s"
	}

	label := p.name
	if len(label) > 24 {
		label = "..." + label[len(label)-21:]
	}

	if total <= 0 {
		return fmt.Sprintf("%-24s %10s %12s", label, humanize.IBytes(uint64(done)), speed)
	}

	barWidth := p.width - 24 - 10 - 12 - 10
	if barWidth < 10 {
		barWidth = 10
	}
	ratio := float64(done) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(barWidth))
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	return fmt.Sprintf("%-24s [%s] %3.0f%% %10s %12s", label, bar, ratio*100, humanize.IBytes(uint64(done)), speed)
}
