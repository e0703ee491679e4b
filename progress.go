package lblstats

import (
	"fmt"
	"math"
)

// Progress receives scan progress notifications. Both calls are synchronous.
type Progress interface {
	SetProgress(fraction float64) // In [0, 1].
	SetStatus(msg string)
}

// NopProgress ignores all notifications.
type NopProgress struct{}

// SetProgress does nothing.
func (NopProgress) SetProgress(float64) {}

// SetStatus does nothing.
func (NopProgress) SetStatus(string) {}

// LogProgress writes status messages to Logf, at most once per whole percent.
type LogProgress struct {
	fraction    float64
	lastPercent int
	logged      bool
}

// SetProgress records the fraction that the next status message refers to.
func (p *LogProgress) SetProgress(fraction float64) {
	p.fraction = fraction
}

// SetStatus logs msg when the progress has advanced by at least one percent since the last
// logged message.
func (p *LogProgress) SetStatus(msg string) {
	percent := int(math.Floor(p.fraction * 100))
	if p.logged && percent <= p.lastPercent {
		return
	}
	p.logged = true
	p.lastPercent = percent
	Logf("%s", msg)
}

// progressFraction returns processed/expected clamped to [0, 1]. An unknown expected count
// reports 0 until the scan completes.
func progressFraction(processed, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	return math.Min(1, float64(processed)/float64(expected))
}

// statusMessage formats the human readable progress status for a split.
func statusMessage(fullName string, fraction float64) string {
	return fmt.Sprintf("%s split: %.2f%% processed", fullName, fraction*100)
}
