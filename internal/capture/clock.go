package capture

import "time"

// Clock provides monotonic session time in seconds.
type Clock struct {
	startedAt time.Time
}

// NewClock starts a clock at zero.
func NewClock() *Clock {
	return &Clock{startedAt: time.Now()}
}

// NowSeconds returns seconds elapsed since the clock started.
func (c *Clock) NowSeconds() float64 {
	return time.Since(c.startedAt).Seconds()
}

// RunningDuration accumulates elapsed time across start/stop spans, so the
// reported recording duration survives pauses between segments.
type RunningDuration struct {
	accumulatedSeconds float64
	startedAtSeconds   float64
	running            bool
}

// Start begins a span. Starting while already running is a no-op.
func (d *RunningDuration) Start(clock *Clock) {
	if d.running {
		return
	}
	d.startedAtSeconds = clock.NowSeconds()
	d.running = true
}

// Stop ends the current span and folds it into the accumulated total.
func (d *RunningDuration) Stop(clock *Clock) {
	if !d.running {
		return
	}
	elapsed := clock.NowSeconds() - d.startedAtSeconds
	if elapsed > 0 {
		d.accumulatedSeconds += elapsed
	}
	d.running = false
}

// Current returns the accumulated duration including any open span.
func (d *RunningDuration) Current(clock *Clock) float64 {
	if !d.running {
		return d.accumulatedSeconds
	}
	elapsed := clock.NowSeconds() - d.startedAtSeconds
	if elapsed < 0 {
		elapsed = 0
	}
	return d.accumulatedSeconds + elapsed
}

// IsRunning reports whether a span is open.
func (d *RunningDuration) IsRunning() bool {
	return d.running
}

// Reset clears the accumulated duration.
func (d *RunningDuration) Reset() {
	d.accumulatedSeconds = 0
	d.running = false
}
