package seq

import (
	"log/slog"
	"math"
	"sort"
)

// minControlWindowLength is the shortest count window, in microseconds,
// that still guarantees both jump evaluation and counter readout work.
const minControlWindowLength = 1.0

// Channel is a named logical channel holding the time windows during
// which it is active. Channels bind to hardware by canonical name.
type Channel struct {
	Name    string
	Windows []*TimeWindow
}

// TimeWindows returns the channel's windows keyed by canonical name.
func (c *Channel) TimeWindows() map[string]*TimeWindow {
	windows := make(map[string]*TimeWindow, len(c.Windows))
	for _, w := range c.Windows {
		windows[CanonicalName(w.Name)] = w
	}
	return windows
}

func (c *Channel) resolveReferences(s *Sequence) error {
	for _, w := range c.Windows {
		if err := w.resolveReferences(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) verify(values Values, length float64) error {
	if c.Name == "" {
		return newError(ErrCodeInvalidDefinition, "", "unnamed channel")
	}
	for _, w := range c.Windows {
		if err := w.verify(values, length); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) controlVariables() []string {
	var names []string
	for _, w := range c.Windows {
		names = append(names, w.controlVariables()...)
	}
	return names
}

// windowRanges returns the resolved [start, end) ranges of all windows,
// sorted by start time.
func (c *Channel) windowRanges(values Values) ([][2]float64, error) {
	ranges := make([][2]float64, 0, len(c.Windows))
	for _, w := range c.Windows {
		start, end, err := w.Times(values)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, [2]float64{start, end})
	}
	sort.Slice(ranges, func(a, b int) bool { return ranges[a][0] < ranges[b][0] })
	return ranges, nil
}

// OutputChannel drives one output of the bus. The output is high while
// one of the channel's windows is active and low otherwise; windows on
// the same output must not overlap.
type OutputChannel struct {
	Channel
}

// NewOutputChannel builds an output channel with the given windows.
func NewOutputChannel(name string, windows ...*TimeWindow) *OutputChannel {
	return &OutputChannel{Channel{Name: name, Windows: windows}}
}

// Active reports whether the channel is logically on at time t.
func (c *OutputChannel) Active(values Values, t float64) (bool, error) {
	for _, w := range c.Windows {
		start, end, err := w.Times(values)
		if err != nil {
			return false, err
		}
		if t >= start && t < end {
			return true, nil
		}
	}
	return false, nil
}

func (c *OutputChannel) verify(values Values, length float64) error {
	if err := c.Channel.verify(values, length); err != nil {
		return err
	}
	ranges, err := c.windowRanges(values)
	if err != nil {
		return err
	}
	for i := 0; i+1 < len(ranges); i++ {
		if ranges[i][1] > ranges[i+1][0] {
			return newError(ErrCodeWindowOverlap, c.Name,
				"overlapping time windows in output channel %q", c.Name)
		}
	}
	return nil
}

// CounterChannel describes which slices of the recorded time-tag data
// are considered during analysis. Its windows are never compiled and
// may overlap.
type CounterChannel struct {
	Channel
}

// NewCounterChannel builds a counter channel with the given windows.
func NewCounterChannel(name string, windows ...*TimeWindow) *CounterChannel {
	return &CounterChannel{Channel{Name: name, Windows: windows}}
}

// ControlChannel gates a hardware pulse counter and carries the jumps
// whose conditions test that counter. Each conditional jump references
// one of the channel's windows as the count interval it decides on.
type ControlChannel struct {
	Channel
	Jumps []*Jump
}

// NewControlChannel builds a control channel with windows and jumps.
func NewControlChannel(name string, windows []*TimeWindow, jumps []*Jump) *ControlChannel {
	return &ControlChannel{Channel: Channel{Name: name, Windows: windows}, Jumps: jumps}
}

// ConditionalJumps returns the channel's conditional jumps in
// declaration order.
func (c *ControlChannel) ConditionalJumps() []*Jump {
	var jumps []*Jump
	for _, j := range c.Jumps {
		if j.Kind == JumpConditional {
			jumps = append(jumps, j)
		}
	}
	return jumps
}

func (c *ControlChannel) resolveReferences(s *Sequence, logger *slog.Logger) error {
	if err := c.Channel.resolveReferences(s); err != nil {
		return err
	}
	for _, j := range c.Jumps {
		if err := j.resolveReferences(s, logger); err != nil {
			return err
		}
	}
	return nil
}

func (c *ControlChannel) verify(values Values, length float64, logger *slog.Logger) error {
	if err := c.Channel.verify(values, length); err != nil {
		return err
	}
	windows := c.TimeWindows()
	for _, w := range c.Windows {
		start, end, err := w.Times(values)
		if err != nil {
			return err
		}
		if end-start < minControlWindowLength {
			return newError(ErrCodeInvalidDefinition, c.Name,
				"count window %q is shorter than the minimal length of %0.0f us",
				w.Name, minControlWindowLength)
		}
	}
	for _, j := range c.Jumps {
		if err := j.verify(values, logger); err != nil {
			return err
		}
	}
	for _, j := range c.ConditionalJumps() {
		w, ok := windows[CanonicalName(j.Window)]
		if !ok {
			return newError(ErrCodeUnresolvedReference, c.Name,
				"count window %q referenced by jump %q not found", j.Window, j.Name)
		}
		_, end, err := w.Times(values)
		if err != nil {
			return err
		}
		jumpTime, err := j.SequenceTime(values)
		if err != nil {
			return err
		}
		if end > jumpTime {
			return newError(ErrCodeInvalidDefinition, c.Name,
				"count window %q referenced by jump %q ends after the jump",
				j.Window, j.Name)
		}
	}
	return nil
}

// verifyWindowLinks rejects jump destinations that lie between a jump's
// count window and the jump itself: re-entering there would rerun the
// window and corrupt the count the jump is about to test.
func (c *ControlChannel) verifyWindowLinks(values Values, destinations []float64) error {
	windows := c.TimeWindows()
	for _, j := range c.ConditionalJumps() {
		start, _, err := windows[CanonicalName(j.Window)].Times(values)
		if err != nil {
			return err
		}
		jumpTime, err := j.SequenceTime(values)
		if err != nil {
			return err
		}
		for _, destination := range destinations {
			if destination < jumpTime && destination > start {
				return newError(ErrCodeInvalidDefinition, c.Name,
					"count window %q is not guaranteed to be acquired before jump %q: "+
						"a jump destination lies between the window and the jump",
					j.Window, j.Name)
			}
		}
	}
	return nil
}

// verifyOrder checks that each jump's count window is the window
// directly preceding it on this channel. The counter memory holds one
// value per channel, so a later window would overwrite the count before
// the jump reads it.
func (c *ControlChannel) verifyOrder(values Values) error {
	windows := c.TimeWindows()

	// Every window on the channel counts, not just the ones a jump
	// references: the counter holds a single value, so any window
	// between a jump's window and the jump overwrites the count.
	endTimes := make([]float64, 0, len(c.Windows))
	for _, w := range c.Windows {
		_, end, err := w.Times(values)
		if err != nil {
			return err
		}
		endTimes = append(endTimes, end)
	}
	for _, j := range c.ConditionalJumps() {
		_, ownEnd, err := windows[CanonicalName(j.Window)].Times(values)
		if err != nil {
			return err
		}
		jumpTime, err := j.SequenceTime(values)
		if err != nil {
			return err
		}
		closest := math.Inf(1)
		for _, end := range endTimes {
			if d := jumpTime - end; d > 0 && d < closest {
				closest = d
			}
		}
		if closest != jumpTime-ownEnd {
			return newError(ErrCodeInvalidDefinition, c.Name,
				"count window %q is not the window directly preceding jump %q",
				j.Window, j.Name)
		}
	}
	return nil
}

func (c *ControlChannel) controlVariables() []string {
	names := c.Channel.controlVariables()
	for _, j := range c.Jumps {
		names = append(names, j.controlVariables()...)
	}
	return names
}
