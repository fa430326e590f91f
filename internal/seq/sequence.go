package seq

import (
	"log/slog"
)

// Sequence is the complete declarative description of one experiment:
// channels with their time windows, jumps, control variables and the
// hardware configuration they bind to. A sequence is built once,
// verified, and then treated as read-only; a variant index selects
// concrete values for all control variables.
type Sequence struct {
	Name     string
	Length   float64 // microseconds
	Shots    int
	Variants int

	Outputs   []*OutputChannel
	Counters  []*CounterChannel
	Controls  []*ControlChannel
	Variables []*ControlVariable

	Hardware *HardwareConfig
}

// Static reports whether the sequence has no jumps at all. A static
// sequence compiles to a straight-line instruction stream with a single
// synthesized terminator.
func (s *Sequence) Static() bool {
	for _, c := range s.Controls {
		if len(c.Jumps) > 0 {
			return false
		}
	}
	return true
}

// TimeWindows returns every window in the sequence keyed by canonical
// name. Name collisions are reported by Verify, not here; on collision
// the later channel's window wins.
func (s *Sequence) TimeWindows() map[string]*TimeWindow {
	windows := make(map[string]*TimeWindow)
	for _, c := range s.Outputs {
		for name, w := range c.TimeWindows() {
			windows[name] = w
		}
	}
	for _, c := range s.Counters {
		for name, w := range c.TimeWindows() {
			windows[name] = w
		}
	}
	for _, c := range s.Controls {
		for name, w := range c.TimeWindows() {
			windows[name] = w
		}
	}
	return windows
}

// Jumps returns every jump in the sequence keyed by canonical name.
func (s *Sequence) Jumps() map[string]*Jump {
	jumps := make(map[string]*Jump)
	for _, c := range s.Controls {
		for _, j := range c.Jumps {
			jumps[CanonicalName(j.Name)] = j
		}
	}
	return jumps
}

// Ends returns the sequence's end jumps keyed by canonical name.
func (s *Sequence) Ends() map[string]*Jump {
	ends := make(map[string]*Jump)
	for name, j := range s.Jumps() {
		if j.Kind == JumpEnd {
			ends[name] = j
		}
	}
	return ends
}

func (s *Sequence) variable(name string) (*ControlVariable, bool) {
	for _, v := range s.Variables {
		if CanonicalName(v.Name) == CanonicalName(name) {
			return v, true
		}
	}
	return nil, false
}

// ControlValues resolves all control variables for one variant.
func (s *Sequence) ControlValues(variant int) (Values, error) {
	if variant < 0 || variant >= s.Variants {
		return nil, newError(ErrCodeInvalidDefinition, s.Name,
			"variant %d outside of configured %d variants", variant, s.Variants)
	}
	values := make(Values, len(s.Variables))
	for _, v := range s.Variables {
		value, err := v.ValueFor(variant, s.Variants)
		if err != nil {
			return nil, err
		}
		values[v.Name] = value
	}
	return values, nil
}

// JumpDestinations returns the resolved times of all jump destinations
// in one variant. With passing set, a passing condition counts as a
// destination at its jump's own time.
func (s *Sequence) JumpDestinations(variant int, passing bool) ([]float64, error) {
	values, err := s.ControlValues(variant)
	if err != nil {
		return nil, err
	}
	var destinations []float64
	for _, c := range s.Controls {
		for _, j := range c.Jumps {
			times, err := j.DestinationTimes(values, passing)
			if err != nil {
				return nil, err
			}
			destinations = append(destinations, times...)
		}
	}
	return destinations, nil
}

// ControlVariableNames returns the names of the control variables the
// sequence actually uses. References must be resolved first, otherwise
// variables used only through references are missed.
func (s *Sequence) ControlVariableNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(found []string) {
		for _, name := range found {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	for _, c := range s.Outputs {
		add(c.controlVariables())
	}
	for _, c := range s.Counters {
		add(c.controlVariables())
	}
	for _, c := range s.Controls {
		add(c.controlVariables())
	}
	return names
}

func (s *Sequence) resolveReferences(logger *slog.Logger) error {
	for _, w := range s.TimeWindows() {
		if err := w.resolveReferences(s); err != nil {
			return err
		}
	}
	for _, c := range s.Controls {
		for _, j := range c.Jumps {
			if err := j.resolveReferences(s, logger); err != nil {
				return err
			}
		}
	}
	return nil
}

// Verify determines whether the sequence is consistent and can be
// compiled. Every variant is checked individually; errors are tagged
// with the variant they were detected in, since windows may only
// collide for particular variable values. Diagnostics go to
// slog.Default(); use VerifyWith to route them elsewhere.
func (s *Sequence) Verify() error {
	return s.VerifyWith(nil)
}

// VerifyWith is Verify with diagnostics routed to logger. A nil logger
// selects slog.Default().
func (s *Sequence) VerifyWith(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if s.Hardware == nil {
		return newError(ErrCodeInvalidDefinition, s.Name, "no hardware configuration")
	}
	if err := s.Hardware.Verify(); err != nil {
		return err
	}
	if s.Length < 1 {
		return newError(ErrCodeInvalidDefinition, s.Name, "length has to be at least 1 us")
	}
	if s.Variants < 1 {
		return newError(ErrCodeInvalidDefinition, s.Name,
			"number of variants cannot be less than 1")
	}
	if s.Shots < 1 {
		return newError(ErrCodeInvalidDefinition, s.Name,
			"number of shots cannot be less than 1")
	}
	for _, v := range s.Variables {
		if err := v.verify(); err != nil {
			return err
		}
	}
	if err := s.verifyNames(); err != nil {
		return err
	}
	if err := s.verifyBindings(); err != nil {
		return err
	}
	if err := s.resolveReferences(logger); err != nil {
		return err
	}
	for variant := 0; variant < s.Variants; variant++ {
		logger.Debug("verifying variant", "sequence", s.Name, "variant", variant, "variants", s.Variants)
		if err := s.verifyVariant(variant, s.Length, logger); err != nil {
			if se, ok := err.(*Error); ok && se.Variant < 0 {
				se.inVariant(variant)
			}
			return err
		}
	}
	return nil
}

// verifyNames checks that windows, jumps and variables carry unique,
// unreserved names across the whole sequence.
func (s *Sequence) verifyNames() error {
	names := make(map[string]string)
	claim := func(name, kind string) error {
		canonical := CanonicalName(name)
		if other, ok := names[canonical]; ok {
			return newError(ErrCodeDuplicateName, name,
				"%s %q collides with a %s of the same name", kind, name, other)
		}
		names[canonical] = kind
		return nil
	}

	channels := make(map[string]bool)
	forEachChannel := func(c *Channel) error {
		canonical := CanonicalName(c.Name)
		if channels[canonical] {
			return newError(ErrCodeDuplicateName, c.Name,
				"channel name %q is not unique", c.Name)
		}
		channels[canonical] = true
		for _, w := range c.Windows {
			if reservedName(w.Name) {
				return newError(ErrCodeInvalidDefinition, w.Name,
					"time window names cannot start with an underscore")
			}
			if err := claim(w.Name, "time window"); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range s.Outputs {
		if err := forEachChannel(&c.Channel); err != nil {
			return err
		}
	}
	for _, c := range s.Counters {
		if err := forEachChannel(&c.Channel); err != nil {
			return err
		}
	}
	for _, c := range s.Controls {
		if err := forEachChannel(&c.Channel); err != nil {
			return err
		}
		for _, j := range c.Jumps {
			if reservedName(j.Name) {
				return newError(ErrCodeInvalidDefinition, j.Name,
					"jump names cannot start with an underscore")
			}
			if err := claim(j.Name, "jump"); err != nil {
				return err
			}
		}
	}
	variables := make(map[string]bool)
	for _, v := range s.Variables {
		canonical := CanonicalName(v.Name)
		if variables[canonical] {
			return newError(ErrCodeDuplicateName, v.Name,
				"control variable name %q is not unique", v.Name)
		}
		variables[canonical] = true
	}
	return nil
}

// verifyBindings checks that every compiled channel binds to a hardware
// channel of the right kind.
func (s *Sequence) verifyBindings() error {
	for _, c := range s.Outputs {
		if _, ok := s.Hardware.Output(c.Name); !ok {
			return newError(ErrCodeUnresolvedReference, c.Name,
				"output channel %q has no hardware output", c.Name)
		}
	}
	for _, c := range s.Controls {
		if _, ok := s.Hardware.PulseCounter(c.Name); !ok {
			return newError(ErrCodeUnresolvedReference, c.Name,
				"control channel %q has no hardware pulse counter", c.Name)
		}
	}
	return nil
}

func (s *Sequence) verifyVariant(variant int, length float64, logger *slog.Logger) error {
	values, err := s.ControlValues(variant)
	if err != nil {
		return err
	}
	for _, c := range s.Outputs {
		if err := c.verify(values, length); err != nil {
			return err
		}
	}
	for _, c := range s.Counters {
		if err := c.verify(values, length); err != nil {
			return err
		}
	}
	for _, c := range s.Controls {
		if err := c.verify(values, length, logger); err != nil {
			return err
		}
	}

	destinations, err := s.JumpDestinations(variant, false)
	if err != nil {
		return err
	}
	for _, c := range s.Controls {
		if err := c.verifyWindowLinks(values, destinations); err != nil {
			return err
		}
		if err := c.verifyOrder(values); err != nil {
			return err
		}
	}

	// Jumps must be strictly ordered in sequence time. They may still
	// quantize to the same tick; in that case the order here decides
	// which jump is shifted during compilation.
	jumpTimes := make(map[float64]string)
	for name, j := range s.Jumps() {
		t, err := j.SequenceTime(values)
		if err != nil {
			return err
		}
		if other, ok := jumpTimes[t]; ok {
			return newError(ErrCodeTimeCollision, name,
				"jumps %q and %q share time %0.2f", name, other, t)
		}
		jumpTimes[t] = name
	}

	// A window edge at the exact time of a jump would race the jump's
	// bus write against the branch decision.
	edges := make(map[float64]bool)
	for _, w := range s.TimeWindows() {
		start, end, err := w.Times(values)
		if err != nil {
			return err
		}
		edges[start] = true
		edges[end] = true
	}
	for t, name := range jumpTimes {
		if edges[t] {
			return newError(ErrCodeTimeCollision, name,
				"a window starts or ends at the time of jump %q (%0.2f)", name, t)
		}
	}

	tree, err := BuildTree(s, values)
	if err != nil {
		return err
	}
	if err := tree.Check(); err != nil {
		logger.Debug("reachability tree", "sequence", s.Name, "variant", variant,
			"tree", tree.String())
		return err
	}
	return nil
}

// LatestTimePoint finds the latest resolved time in the sequence for
// one variant: the latest window end or jump time, whichever is later.
// The compiler uses it to truncate trailing dead time. A nil logger
// selects slog.Default().
func (s *Sequence) LatestTimePoint(variant int, logger *slog.Logger) (float64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	values, err := s.ControlValues(variant)
	if err != nil {
		return 0, err
	}
	latest := 0.0
	for _, w := range s.TimeWindows() {
		_, end, err := w.Times(values)
		if err != nil {
			return 0, err
		}
		if end > latest {
			latest = end
		}
	}
	for _, j := range s.Jumps() {
		t, err := j.SequenceTime(values)
		if err != nil {
			return 0, err
		}
		if t > latest {
			latest = t
		}
	}
	if latest == 0 {
		logger.Warn("sequence has no time points, not truncating", "sequence", s.Name)
		return s.Length, nil
	}
	if err := s.verifyVariant(variant, latest, logger); err != nil {
		return 0, newError(ErrCodeInvalidDefinition, s.Name,
			"truncated sequence is no longer valid: %v", err)
	}
	return latest, nil
}
