package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressTracker(t *testing.T) {
	pt := NewProgressTracker(4, "test")
	if pt.Percentage() != 0 {
		t.Errorf("initial percentage = %v", pt.Percentage())
	}
	for range 4 {
		pt.Increment()
	}
	if pt.Processed != 4 || pt.Percentage() != 100 {
		t.Errorf("processed = %d, percentage = %v", pt.Processed, pt.Percentage())
	}
	if NewProgressTracker(0, "empty").Percentage() != 100 {
		t.Error("an empty tracker is complete")
	}
}

func TestAwaitWithSpinner(t *testing.T) {
	done := make(chan struct{})
	go func() {
		time.Sleep(250 * time.Millisecond)
		close(done)
	}()

	var buf bytes.Buffer
	AwaitWithSpinner(&buf, "dissolving", done)
	if !strings.HasSuffix(buf.String(), "dissolving done\n") {
		t.Errorf("output = %q", buf.String())
	}

	closed := make(chan struct{})
	close(closed)
	AwaitWithSpinner(nil, "silent", closed)
}
