package seq

// Values holds the resolved control-variable values for one variant,
// keyed by variable name. All times are microseconds.
type Values map[string]float64

// RefKind selects what a Reference points at.
type RefKind string

const (
	RefStart    RefKind = "start"    // start point of a time window
	RefEnd      RefKind = "end"      // end point of a time window
	RefJump     RefKind = "jump"     // time of a jump
	RefVariable RefKind = "variable" // a control variable
)

// Reference points at another time point or a control variable by name.
// References are resolved once, after the full sequence is assembled,
// because the target may be defined anywhere in the sequence.
type Reference struct {
	Kind RefKind
	Name string

	window *TimeWindow
	jump   *Jump
}

// NewReference builds an unresolved reference.
func NewReference(kind RefKind, name string) *Reference {
	return &Reference{Kind: kind, Name: name}
}

func (r *Reference) resolve(s *Sequence) error {
	switch r.Kind {
	case RefVariable:
		if _, ok := s.variable(r.Name); !ok {
			return newError(ErrCodeUnresolvedReference, r.Name,
				"cannot resolve reference to control variable %q", r.Name)
		}
	case RefStart, RefEnd:
		w, ok := s.TimeWindows()[CanonicalName(r.Name)]
		if !ok {
			return newError(ErrCodeUnresolvedReference, r.Name,
				"cannot resolve reference to time window %q", r.Name)
		}
		r.window = w
	case RefJump:
		j, ok := s.Jumps()[CanonicalName(r.Name)]
		if !ok {
			return newError(ErrCodeUnresolvedReference, r.Name,
				"cannot resolve reference to jump %q", r.Name)
		}
		r.jump = j
	default:
		return newError(ErrCodeInvalidDefinition, r.Name, "invalid reference kind %q", r.Kind)
	}
	return nil
}

func (r *Reference) resolved() bool {
	switch r.Kind {
	case RefVariable:
		return true
	case RefStart, RefEnd:
		return r.window != nil
	case RefJump:
		return r.jump != nil
	}
	return false
}

// Time evaluates the referenced time for one variant.
func (r *Reference) Time(values Values) (float64, error) {
	switch r.Kind {
	case RefVariable:
		v, ok := values[r.Name]
		if !ok {
			return 0, newError(ErrCodeUnknownVariable, r.Name,
				"no value for control variable %q", r.Name)
		}
		return v, nil
	case RefStart:
		if r.window == nil {
			return 0, newError(ErrCodeUnresolvedReference, r.Name, "reference to %q not resolved", r.Name)
		}
		return r.window.Start.Time(values)
	case RefEnd:
		if r.window == nil {
			return 0, newError(ErrCodeUnresolvedReference, r.Name, "reference to %q not resolved", r.Name)
		}
		return r.window.End.Time(values)
	case RefJump:
		if r.jump == nil {
			return 0, newError(ErrCodeUnresolvedReference, r.Name, "reference to %q not resolved", r.Name)
		}
		return r.jump.Time.Time(values)
	}
	return 0, newError(ErrCodeInvalidDefinition, r.Name, "invalid reference kind %q", r.Kind)
}

func (r *Reference) controlVariables() []string {
	switch r.Kind {
	case RefVariable:
		return []string{r.Name}
	case RefStart, RefEnd:
		if r.window != nil {
			return r.window.controlVariables()
		}
	case RefJump:
		if r.jump != nil {
			return r.jump.Time.controlVariables()
		}
	}
	return nil
}

// OffsetKind selects how an Offset produces its value.
type OffsetKind string

const (
	OffsetAbsolute OffsetKind = "absolute"
	OffsetVariable OffsetKind = "variable"
)

// Offset shifts a referenced time by a constant or by the value of a
// control variable. Offsets may be negative.
type Offset struct {
	Kind     OffsetKind
	Value    float64 // absolute
	Variable string  // variable
}

// AbsoluteOffset builds a constant offset.
func AbsoluteOffset(value float64) *Offset {
	return &Offset{Kind: OffsetAbsolute, Value: value}
}

// VariableOffset builds an offset taking the value of a control variable.
func VariableOffset(name string) *Offset {
	return &Offset{Kind: OffsetVariable, Variable: name}
}

// Amount evaluates the offset for one variant.
func (o *Offset) Amount(values Values) (float64, error) {
	switch o.Kind {
	case OffsetAbsolute:
		return o.Value, nil
	case OffsetVariable:
		v, ok := values[o.Variable]
		if !ok {
			return 0, newError(ErrCodeUnknownVariable, o.Variable,
				"no value for control variable %q", o.Variable)
		}
		return v, nil
	}
	return 0, newError(ErrCodeInvalidDefinition, "", "invalid offset kind %q", o.Kind)
}

func (o *Offset) controlVariables() []string {
	if o.Kind == OffsetVariable {
		return []string{o.Variable}
	}
	return nil
}

// PointKind selects how a TimePoint produces its time.
type PointKind string

const (
	PointAbsolute PointKind = "absolute"
	PointVariable PointKind = "variable"
	PointRelative PointKind = "relative"
)

// TimePoint is a single time value in microseconds: a constant, a
// control variable, or another point shifted by an Offset.
type TimePoint struct {
	Kind     PointKind
	Value    float64 // absolute
	Variable string  // variable
	Ref      *Reference
	Off      *Offset

	// visiting guards against relative points that depend on
	// themselves through a chain of references.
	visiting bool
}

// AbsolutePoint builds a constant time point.
func AbsolutePoint(value float64) *TimePoint {
	return &TimePoint{Kind: PointAbsolute, Value: value}
}

// VariablePoint builds a time point taking the value of a control variable.
func VariablePoint(name string) *TimePoint {
	return &TimePoint{Kind: PointVariable, Variable: name}
}

// RelativePoint builds a time point defined relative to a reference.
func RelativePoint(ref *Reference, off *Offset) *TimePoint {
	return &TimePoint{Kind: PointRelative, Ref: ref, Off: off}
}

// Time evaluates the point for one variant. A relative point that ends
// up asking for its own time is reported as a recursive reference.
func (p *TimePoint) Time(values Values) (float64, error) {
	switch p.Kind {
	case PointAbsolute:
		return p.Value, nil
	case PointVariable:
		v, ok := values[p.Variable]
		if !ok {
			return 0, newError(ErrCodeUnknownVariable, p.Variable,
				"no value for control variable %q", p.Variable)
		}
		return v, nil
	case PointRelative:
		if p.visiting {
			return 0, newError(ErrCodeRecursiveReference, p.Ref.Name,
				"time point depends on itself through %q", p.Ref.Name)
		}
		p.visiting = true
		defer func() { p.visiting = false }()

		base, err := p.Ref.Time(values)
		if err != nil {
			return 0, err
		}
		off, err := p.Off.Amount(values)
		if err != nil {
			return 0, err
		}
		return base + off, nil
	}
	return 0, newError(ErrCodeInvalidDefinition, "", "invalid time point kind %q", p.Kind)
}

func (p *TimePoint) resolve(s *Sequence) error {
	if p.Kind == PointRelative {
		return p.Ref.resolve(s)
	}
	return nil
}

// verify checks that the point is well-formed and lies inside [0, length].
func (p *TimePoint) verify(entity string, values Values, length float64) error {
	if p.Kind == PointRelative {
		if p.Ref == nil || p.Off == nil {
			return newError(ErrCodeInvalidDefinition, entity,
				"relative time point needs a reference and an offset")
		}
		if !p.Ref.resolved() {
			return newError(ErrCodeUnresolvedReference, entity,
				"unresolved reference to %q", p.Ref.Name)
		}
	}
	t, err := p.Time(values)
	if err != nil {
		return err
	}
	if t < 0 || t > length {
		return newError(ErrCodeOutOfBounds, entity,
			"time %0.2f is outside of sequence of length %0.2f", t, length)
	}
	return nil
}

func (p *TimePoint) controlVariables() []string {
	switch p.Kind {
	case PointVariable:
		return []string{p.Variable}
	case PointRelative:
		var names []string
		if p.Ref != nil {
			names = append(names, p.Ref.controlVariables()...)
		}
		if p.Off != nil {
			names = append(names, p.Off.controlVariables()...)
		}
		return names
	}
	return nil
}
