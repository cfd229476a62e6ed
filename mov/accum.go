// Package mov implements the model output variables (MOVs) of the PEAQ
// measurement scheme: the per-frame analyses that compare reference and
// test model outputs, and the accumulator family that reduces their
// per-frame values to one scalar per variable over the whole signal.
package mov

import "math"

// Mode selects the accumulation strategy of an Accumulator.
type Mode int

const (
	// ModeAvg is a weighted arithmetic mean.
	ModeAvg Mode = iota
	// ModeAvgLog is a weighted arithmetic mean reported as 10*log10.
	ModeAvgLog
	// ModeRMS is a weighted root mean square.
	ModeRMS
	// ModeRMSAsym accumulates two inputs per call into independent
	// mean squares; the result is sqrt(mean1) + 0.5*sqrt(mean2).
	ModeRMSAsym
	// ModeAvgWindow smooths the square roots of the last four values
	// before folding their fourth power into a plain average; the
	// result is the square root of that average.
	ModeAvgWindow
	// ModeFilteredMax reports the running maximum of a one-pole
	// filtered (0.9/0.1) input stream.
	ModeFilteredMax
	// ModeADB reports log10 of the weighted mean, 0 when nothing was
	// accumulated and -0.5 when only zeros were.
	ModeADB
)

// Status is the lifecycle state of an Accumulator.
type Status int

const (
	// StatusInit ignores all writes; used before the data boundary of
	// the signal has been found.
	StatusInit Status = iota
	// StatusNormal applies writes immediately.
	StatusNormal
	// StatusTentative stages writes: the live state keeps evolving but
	// the reported value stays at the last committed state until the
	// tentative phase is either committed or the stream ends.
	StatusTentative
)

const windowLag = 3

type channelState struct {
	num float64
	den float64

	num2 float64

	lag    [windowLag]float64
	lagLen int

	filt    float64
	maximum float64
}

// Accumulator reduces a per-frame, per-channel scalar stream into one
// model output variable. The final value averages the per-channel
// results.
type Accumulator struct {
	mode     Mode
	status   Status
	channels []channelState
	saved    []channelState
}

// NewAccumulator creates an accumulator in the given mode for the given
// channel count. It starts out in StatusInit and ignores writes until
// Enable is called.
func NewAccumulator(mode Mode, channels int) *Accumulator {
	return &Accumulator{
		mode:     mode,
		channels: make([]channelState, channels),
	}
}

// Channels returns the configured channel count.
func (a *Accumulator) Channels() int { return len(a.channels) }

// Status returns the current lifecycle state.
func (a *Accumulator) Status() Status { return a.status }

// Enable moves an uninitialized accumulator to StatusNormal. It has no
// effect once the accumulator left StatusInit.
func (a *Accumulator) Enable() {
	if a.status == StatusInit {
		a.status = StatusNormal
	}
}

// SetTentative enters or leaves the tentative phase. Entering snapshots
// the current state so the reported value can stay at the last
// committed point; leaving discards the snapshot and exposes everything
// accumulated meanwhile.
func (a *Accumulator) SetTentative(tentative bool) {
	switch {
	case tentative && a.status == StatusNormal:
		a.saved = make([]channelState, len(a.channels))
		copy(a.saved, a.channels)
		a.status = StatusTentative
	case !tentative && a.status == StatusTentative:
		a.saved = nil
		a.status = StatusNormal
	}
}

// Accumulate feeds one value with a weight for one channel.
func (a *Accumulator) Accumulate(channel int, value, weight float64) {
	a.AccumulatePair(channel, value, 0, weight)
}

// AccumulatePair feeds the two inputs of the asymmetric modes; other
// modes ignore the second value.
func (a *Accumulator) AccumulatePair(channel int, value, value2, weight float64) {
	if a.status == StatusInit {
		return
	}

	c := &a.channels[channel]

	switch a.mode {
	case ModeAvg, ModeAvgLog, ModeADB:
		c.num += weight * value
		c.den += weight
	case ModeRMS:
		c.num += weight * weight * value * value
		c.den += weight * weight
	case ModeRMSAsym:
		c.num += weight * value * value
		c.num2 += weight * value2 * value2
		c.den += weight
	case ModeAvgWindow:
		root := math.Sqrt(value)
		if c.lagLen < windowLag {
			c.lag[c.lagLen] = root
			c.lagLen++

			return
		}

		avg := (c.lag[0] + c.lag[1] + c.lag[2] + root) / 4.
		c.num += avg * avg * avg * avg
		c.den++

		c.lag[0], c.lag[1], c.lag[2] = c.lag[1], c.lag[2], root
	case ModeFilteredMax:
		c.filt = 0.9*c.filt + 0.1*value
		c.maximum = math.Max(c.maximum, c.filt)
	}
}

// Value returns the accumulated model output variable, averaged over
// channels. During the tentative phase it reflects the last committed
// state only.
func (a *Accumulator) Value() float64 {
	states := a.channels
	if a.status == StatusTentative {
		states = a.saved
	}

	total := 0.
	for i := range states {
		total += a.channelValue(&states[i])
	}

	return total / float64(len(states))
}

func (a *Accumulator) channelValue(c *channelState) float64 {
	switch a.mode {
	case ModeAvg:
		if c.den == 0 {
			return 0
		}

		return c.num / c.den
	case ModeAvgLog:
		if c.den == 0 || c.num <= 0 {
			return 0
		}

		return 10. * math.Log10(c.num/c.den)
	case ModeRMS:
		if c.den == 0 {
			return 0
		}

		return math.Sqrt(c.num / c.den)
	case ModeRMSAsym:
		if c.den == 0 {
			return 0
		}

		return math.Sqrt(c.num/c.den) + 0.5*math.Sqrt(c.num2/c.den)
	case ModeAvgWindow:
		if c.den == 0 {
			return 0
		}

		return math.Sqrt(c.num / c.den)
	case ModeFilteredMax:
		return c.maximum
	case ModeADB:
		switch {
		case c.den == 0:
			return 0
		case c.num == 0:
			return -0.5
		default:
			return math.Log10(c.num / c.den)
		}
	}

	return 0
}
