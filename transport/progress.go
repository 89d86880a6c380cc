package transport

import (
	"io"
	"time"
)

// ProgressReader wraps an io.Reader to track transfer progress.
type ProgressReader struct {
	Reader      io.Reader
	Total       int64
	Transferred int64
	StartTime   time.Time
	LastUpdate  time.Time
	LastBytes   int64
	Interval    time.Duration // 0 means 100ms
	OnProgress  func(transferred, total int64, speed float64, elapsed time.Duration)

	now func() time.Time
}

func (pr *ProgressReader) clock() time.Time {
	if pr.now != nil {
		return pr.now()
	}
	return time.Now()
}

func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	if pr.StartTime.IsZero() {
		pr.StartTime = pr.clock()
		pr.LastUpdate = pr.StartTime
		pr.LastBytes = 0
	}
	interval := pr.Interval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}

	n, err = pr.Reader.Read(p)
	if n > 0 {
		pr.Transferred += int64(n)

		now := pr.clock()
		if now.Sub(pr.LastUpdate) >= interval {
			speed := float64(pr.Transferred-pr.LastBytes) / now.Sub(pr.LastUpdate).Seconds()
			if pr.OnProgress != nil {
				pr.OnProgress(pr.Transferred, pr.Total, speed, now.Sub(pr.StartTime))
			}
			pr.LastUpdate = now
			pr.LastBytes = pr.Transferred
		}
	}
	// Always report completion so callers can finish their progress line.
	if err == io.EOF && pr.OnProgress != nil && pr.LastBytes != pr.Transferred {
		now := pr.clock()
		elapsed := now.Sub(pr.StartTime)
		speed := 0.0
		if elapsed > 0 {
			speed = float64(pr.Transferred) / elapsed.Seconds()
		}
		pr.OnProgress(pr.Transferred, pr.Total, speed, elapsed)
		pr.LastUpdate = now
		pr.LastBytes = pr.Transferred
	}
	return
}

// AverageSpeed returns bytes per second since the first read.
func (pr *ProgressReader) AverageSpeed() float64 {
	if pr.StartTime.IsZero() {
		return 0
	}
	elapsed := pr.clock().Sub(pr.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(pr.Transferred) / elapsed
}
