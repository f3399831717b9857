package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimer_Phases(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	timer := NewTimer("test", WithClock(clock))

	pt := timer.Start("read")
	clock.Advance(250 * time.Millisecond)
	pt.Stop()

	assert.Equal(t, 250*time.Millisecond, timer.PhaseDuration("read"))
}

func TestTimer_StopIsIdempotent(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	timer := NewTimer("test", WithClock(clock))

	pt := timer.Start("phase")
	clock.Advance(time.Second)
	first := pt.Stop()
	clock.Advance(time.Hour)
	second := pt.Stop()

	assert.Equal(t, time.Second, first)
	assert.Equal(t, time.Duration(0), second)
	assert.Equal(t, time.Second, timer.PhaseDuration("phase"))
}

func TestTimer_TimeFunc(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	timer := NewTimer("test", WithClock(clock))

	d := timer.TimeFunc("work", func() {
		clock.Advance(42 * time.Millisecond)
	})
	assert.Equal(t, 42*time.Millisecond, d)
}

func TestTimer_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelInfo, &buf)
	clock := NewFakeClock(time.Unix(1000, 0))
	timer := NewTimer("pipeline", WithLogger(logger), WithClock(clock))

	timer.TimeFunc("parse", func() { clock.Advance(time.Second) })
	timer.PrintSummary()

	out := buf.String()
	assert.Contains(t, out, "pipeline timing summary")
	assert.Contains(t, out, "parse")
}

func TestTimer_NoLoggerIsQuiet(t *testing.T) {
	timer := NewTimer("silent")
	timer.TimeFunc("work", func() {})
	timer.PrintSummary() // must not panic
}
