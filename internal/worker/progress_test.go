package worker

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Update(t *testing.T) {
	p := NewProgress(10, false)

	p.Update(5, 10, 0)

	assert.Equal(t, 5, p.completed)
	assert.Equal(t, 10, p.total)
}

func TestProgress_Print(t *testing.T) {
	var buf bytes.Buffer

	p := NewProgress(10, true)
	p.SetOutput(&buf)
	p.startTime = time.Now().Add(-10 * time.Second)

	p.Update(5, 10, 1)

	output := buf.String()
	assert.Contains(t, output, "█")
	assert.Contains(t, output, "5/10 sources")
	assert.Contains(t, output, "(1 failed)")
	assert.Contains(t, output, "sources/sec")
	assert.Contains(t, output, "ETA:")
}

func TestProgress_Done(t *testing.T) {
	var buf bytes.Buffer

	p := NewProgress(3, true)
	p.SetOutput(&buf)
	p.startTime = time.Now().Add(-3 * time.Second)

	p.Update(3, 3, 0)
	buf.Reset()

	p.Done()

	output := buf.String()
	assert.Contains(t, output, "Done in")
	assert.True(t, strings.HasSuffix(output, "\n"), "expected trailing newline")
}

func TestProgress_ZeroTotal(t *testing.T) {
	line := renderLine(0, 0, 0, 0, 0, time.Second)
	assert.Contains(t, line, "0/0 sources")
	assert.Contains(t, line, "Done in")
}

func TestProgress_Summary(t *testing.T) {
	p := NewProgress(10, false)
	p.startTime = time.Now().Add(-10 * time.Second)
	p.SetSkipped(4)

	p.Update(10, 10, 2)

	summary := p.Summary()
	assert.Contains(t, summary, "8/10 sources")
	assert.Contains(t, summary, "2 failed")
	assert.Contains(t, summary, "4 files skipped")
}

func TestProgress_Disabled(t *testing.T) {
	var buf bytes.Buffer

	p := NewProgress(10, false)
	p.SetOutput(&buf)

	p.Update(5, 10, 0)

	assert.Zero(t, buf.Len(), "expected no output when disabled")
}

func TestProgress_Callback(t *testing.T) {
	p := NewProgress(10, false)

	p.Callback()(5, 10, 1)

	assert.Equal(t, 5, p.completed)
	assert.Equal(t, 1, p.failed)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		expected string
		duration time.Duration
	}{
		{duration: 30 * time.Second, expected: "30s"},
		{duration: 90 * time.Second, expected: "1m30s"},
		{duration: 5 * time.Minute, expected: "5m0s"},
		{duration: 65 * time.Minute, expected: "1h5m"},
		{duration: 2*time.Hour + 30*time.Minute, expected: "2h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}
