package seq

import (
	"log/slog"
	"sort"
)

// CountSpace is the size of the count value space a jump condition can
// test: thresholds are 16-bit.
const CountSpace = 1 << 16

// Target is where a satisfied jump condition sends the sequence: a
// Destination (another point in the sequence), a Terminator (end of the
// sequence), or a Pass (continue without branching).
type Target interface {
	target()
}

// Destination references the time point the sequence continues at.
type Destination struct {
	Ref *Reference
}

func (*Destination) target() {}

// Terminator ends the sequence.
type Terminator struct{}

func (*Terminator) target() {}

// Pass continues with the next instruction without branching.
type Pass struct{}

func (*Pass) target() {}

// targetsEqual decides whether two chain entries can be merged. Distinct
// Pass values stay distinct: each passing condition carries its own
// control-register marker, so only the shared else target merges.
func targetsEqual(a, b Target) bool {
	switch at := a.(type) {
	case *Terminator:
		_, ok := b.(*Terminator)
		return ok
	case *Destination:
		bt, ok := b.(*Destination)
		if !ok {
			return false
		}
		return at.Ref.Kind == bt.Ref.Kind &&
			CanonicalName(at.Ref.Name) == CanonicalName(bt.Ref.Name)
	case *Pass:
		return a == b
	}
	return false
}

// ConditionKind selects how a Condition describes its count range.
type ConditionKind string

const (
	// ConditionValue is true for exactly one count value.
	ConditionValue ConditionKind = "value"

	// ConditionThreshold is true when the count reaches or exceeds a
	// threshold.
	ConditionThreshold ConditionKind = "threshold"

	// ConditionRange is true for counts in [Lo, Hi).
	ConditionRange ConditionKind = "range"

	// ConditionElse is true when no other condition matched.
	ConditionElse ConditionKind = "else"
)

// Condition maps a count range to a Target.
type Condition struct {
	Kind      ConditionKind
	Value     int // value
	Threshold int // threshold
	Lo, Hi    int // range
	Target    Target
}

// ValueCondition matches exactly one count value.
func ValueCondition(value int, target Target) *Condition {
	return &Condition{Kind: ConditionValue, Value: value, Target: target}
}

// ThresholdCond matches counts at or above threshold.
func ThresholdCond(threshold int, target Target) *Condition {
	return &Condition{Kind: ConditionThreshold, Threshold: threshold, Target: target}
}

// RangeCondition matches counts in [lo, hi).
func RangeCondition(lo, hi int, target Target) *Condition {
	return &Condition{Kind: ConditionRange, Lo: lo, Hi: hi, Target: target}
}

// ElseCondition matches when no other condition does.
func ElseCondition(target Target) *Condition {
	return &Condition{Kind: ConditionElse, Target: target}
}

// Range returns the count interval [lo, hi) for which the condition is true.
func (c *Condition) Range() (lo, hi int, err error) {
	switch c.Kind {
	case ConditionValue:
		return c.Value, c.Value + 1, nil
	case ConditionThreshold:
		return c.Threshold, CountSpace, nil
	case ConditionRange:
		return c.Lo, c.Hi, nil
	case ConditionElse:
		return 0, CountSpace, nil
	}
	return 0, 0, newError(ErrCodeInvalidDefinition, "", "invalid condition kind %q", c.Kind)
}

func (c *Condition) verify(jump string) error {
	lo, hi, err := c.Range()
	if err != nil {
		return err
	}
	if lo < 0 || hi > CountSpace || hi <= lo {
		return newError(ErrCodeInvalidDefinition, jump,
			"condition range [%d, %d) is not a valid count interval", lo, hi)
	}
	if c.Target == nil {
		return newError(ErrCodeInvalidDefinition, jump, "condition without a target")
	}
	return nil
}

// JumpKind distinguishes the three jump flavors a sequence can declare.
type JumpKind string

const (
	// JumpConditional evaluates its window's count against conditions.
	JumpConditional JumpKind = "conditional"

	// JumpGoto always jumps to its single destination.
	JumpGoto JumpKind = "goto"

	// JumpEnd always terminates the sequence.
	JumpEnd JumpKind = "end"
)

// Jump is a named decision point at a computed sequence time. For
// conditional jumps, the accumulated count of the referenced window is
// tested against the conditions; the hardware evaluates one threshold
// per tick, so the compiler turns the conditions into a chain of
// single-threshold jumps ending exactly at the jump's time.
type Jump struct {
	Name string
	Kind JumpKind
	Time *TimePoint

	// Window names the count window on the same control channel whose
	// accumulated count is tested. Conditional jumps only.
	Window string

	Conditions []*Condition
}

// NewConditionalJump builds a jump testing the count of window.
func NewConditionalJump(name string, time *TimePoint, window string, conditions ...*Condition) *Jump {
	return &Jump{
		Name:       name,
		Kind:       JumpConditional,
		Time:       time,
		Window:     window,
		Conditions: conditions,
	}
}

// NewGoto builds a jump that always jumps to dest.
func NewGoto(name string, time *TimePoint, dest *Reference) *Jump {
	return &Jump{
		Name:       name,
		Kind:       JumpGoto,
		Time:       time,
		Conditions: []*Condition{ElseCondition(&Destination{Ref: dest})},
	}
}

// NewEnd builds a jump that always terminates the sequence.
func NewEnd(name string, time *TimePoint) *Jump {
	return &Jump{
		Name:       name,
		Kind:       JumpEnd,
		Time:       time,
		Conditions: []*Condition{ElseCondition(&Terminator{})},
	}
}

// SequenceTime evaluates the jump's time for one variant.
func (j *Jump) SequenceTime(values Values) (float64, error) {
	return j.Time.Time(values)
}

// EnsureElse synthesizes a passing else condition when none is declared.
// The jump then falls through for all counts no other condition covers.
// A nil logger selects slog.Default().
func (j *Jump) EnsureElse(logger *slog.Logger) {
	for _, c := range j.Conditions {
		if c.Kind == ConditionElse {
			return
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("jump has no else condition, defaulting to pass", "jump", j.Name)
	j.Conditions = append(j.Conditions, ElseCondition(&Pass{}))
}

// ChainEntry is one entry of a descending threshold chain: the jump is
// taken when count >= Threshold and no higher-threshold entry matched.
type ChainEntry struct {
	Threshold int
	Target    Target
}

// ThresholdChain converts the jump's conditions into threshold entries
// ordered by descending threshold. Evaluating "count >= threshold" in
// that order and falling through otherwise reproduces the condition
// ranges exactly. Overlapping ranges are rejected.
func (j *Jump) ThresholdChain() ([]ChainEntry, error) {
	var elseTarget Target
	type span struct {
		lo, hi int
		target Target
	}
	var spans []span
	for _, c := range j.Conditions {
		if c.Kind == ConditionElse {
			elseTarget = c.Target
			continue
		}
		lo, hi, err := c.Range()
		if err != nil {
			return nil, err
		}
		spans = append(spans, span{lo, hi, c.Target})
	}
	if elseTarget == nil {
		return nil, newError(ErrCodeInvalidDefinition, j.Name,
			"jump has no else condition; call EnsureElse first")
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a].lo > spans[b].lo })

	current := CountSpace
	var chain []ChainEntry
	for _, s := range spans {
		switch {
		case s.hi < current:
			chain = append(chain, ChainEntry{s.hi, elseTarget})
			chain = append(chain, ChainEntry{s.lo, s.target})
		case s.hi == current:
			chain = append(chain, ChainEntry{s.lo, s.target})
		default:
			return nil, newError(ErrCodeRangeOverlap, j.Name,
				"condition ranges overlap at count %d", s.hi)
		}
		current = s.lo
	}
	if current > 0 {
		chain = append(chain, ChainEntry{0, elseTarget})
	}
	return chain, nil
}

// CompressedChain merges adjacent chain entries with an identical target,
// keeping the lowest threshold of each run. Collapsing runs keeps the
// chain within the hardware's per-jump condition budget and drops
// thresholds that could never change the outcome.
func (j *Jump) CompressedChain() ([]ChainEntry, error) {
	chain, err := j.ThresholdChain()
	if err != nil {
		return nil, err
	}
	var compressed []ChainEntry
	for i, entry := range chain {
		if i+1 < len(chain) && targetsEqual(entry.Target, chain[i+1].Target) {
			continue
		}
		compressed = append(compressed, entry)
	}
	return compressed, nil
}

// DestinationTimes returns the resolved times of all destinations. With
// passing set, a passing condition counts as a destination at the jump's
// own time.
func (j *Jump) DestinationTimes(values Values, passing bool) ([]float64, error) {
	var times []float64
	for _, c := range j.Conditions {
		switch t := c.Target.(type) {
		case *Destination:
			time, err := t.Ref.Time(values)
			if err != nil {
				return nil, err
			}
			times = append(times, time)
		case *Pass:
			if passing {
				time, err := j.SequenceTime(values)
				if err != nil {
					return nil, err
				}
				times = append(times, time)
			}
		case *Terminator:
		}
	}
	return times, nil
}

func (j *Jump) resolveReferences(s *Sequence, logger *slog.Logger) error {
	if err := j.Time.resolve(s); err != nil {
		return err
	}
	j.EnsureElse(logger)
	for _, c := range j.Conditions {
		if d, ok := c.Target.(*Destination); ok {
			if err := d.Ref.resolve(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (j *Jump) verify(values Values, logger *slog.Logger) error {
	j.EnsureElse(logger)

	elseCount := 0
	for _, c := range j.Conditions {
		if err := c.verify(j.Name); err != nil {
			return err
		}
		if c.Kind == ConditionElse {
			elseCount++
		}
		if d, ok := c.Target.(*Destination); ok {
			if d.Ref.Kind == RefJump && d.Ref.jump != nil && d.Ref.jump.Kind == JumpConditional {
				return newError(ErrCodeInvalidDefinition, j.Name,
					"destination of a jump cannot be a conditional jump; "+
						"jump to the start of its window instead")
			}
		}
	}
	if elseCount > 1 {
		return newError(ErrCodeInvalidDefinition, j.Name, "multiple else conditions")
	}

	// Overlap check.
	if _, err := j.ThresholdChain(); err != nil {
		return err
	}

	switch j.Kind {
	case JumpGoto:
		if len(j.Conditions) != 1 || j.Conditions[0].Kind != ConditionElse {
			return newError(ErrCodeInvalidDefinition, j.Name,
				"goto must have exactly one else condition")
		}
		switch j.Conditions[0].Target.(type) {
		case *Destination:
		case *Terminator:
			return newError(ErrCodeInvalidDefinition, j.Name,
				"destination of a goto cannot be a terminator; use an end jump instead")
		default:
			return newError(ErrCodeInvalidDefinition, j.Name, "goto without a destination")
		}
	case JumpEnd:
		if len(j.Conditions) != 1 || j.Conditions[0].Kind != ConditionElse {
			return newError(ErrCodeInvalidDefinition, j.Name,
				"end must have exactly one else condition")
		}
		if _, ok := j.Conditions[0].Target.(*Terminator); !ok {
			return newError(ErrCodeInvalidDefinition, j.Name, "non-terminating end")
		}
	case JumpConditional:
		destinations, terminators := 0, 0
		for _, c := range j.Conditions {
			switch c.Target.(type) {
			case *Destination:
				destinations++
			case *Terminator:
				terminators++
			}
		}
		if destinations == 0 {
			if terminators > 0 {
				return newError(ErrCodeInvalidDefinition, j.Name,
					"conditional jump always terminates the sequence")
			}
			return newError(ErrCodeInvalidDefinition, j.Name,
				"conditional jump always passes")
		}
	default:
		return newError(ErrCodeInvalidDefinition, j.Name, "invalid jump kind %q", j.Kind)
	}
	return nil
}

func (j *Jump) controlVariables() []string {
	names := j.Time.controlVariables()
	for _, c := range j.Conditions {
		if d, ok := c.Target.(*Destination); ok {
			names = append(names, d.Ref.controlVariables()...)
		}
	}
	return names
}
