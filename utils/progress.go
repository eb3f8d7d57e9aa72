package utils

import (
	"fmt"
	"io"
	"time"

	"github.com/tj/go-spin"
)

// ProgressTracker logs progress of a sequential loop every Every items and
// at completion.
type ProgressTracker struct {
	Total     int64
	Processed int64
	StartTime time.Time
	Name      string
	Every     int64
}

func NewProgressTracker(total int64, name string) *ProgressTracker {
	return &ProgressTracker{
		Total:     total,
		StartTime: time.Now(),
		Name:      name,
		Every:     100,
	}
}

func (pt *ProgressTracker) Increment() {
	pt.Processed++
	if pt.Every <= 0 || (pt.Processed%pt.Every != 0 && pt.Processed != pt.Total) {
		return
	}
	elapsed := time.Since(pt.StartTime)
	rate := float64(pt.Processed) / elapsed.Seconds()
	L().Info(pt.Name,
		"processed", pt.Processed,
		"total", pt.Total,
		"percent", fmt.Sprintf("%.1f", pt.Percentage()),
		"rate", fmt.Sprintf("%.1f/s", rate))
}

func (pt *ProgressTracker) Percentage() float64 {
	if pt.Total == 0 {
		return 100
	}
	return float64(pt.Processed) / float64(pt.Total) * 100
}

// AwaitWithSpinner blocks until done is closed, drawing a spinner next to
// label on w. A nil writer waits silently.
func AwaitWithSpinner(w io.Writer, label string, done <-chan struct{}) {
	if w == nil {
		<-done
		return
	}
	s := spin.New()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			fmt.Fprintf(w, "\r%s done\n", label)
			return
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s %s", label, s.Next())
		}
	}
}
