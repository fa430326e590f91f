package seqfile

import (
	"github.com/iontrap/fecs/internal/seq"
)

// fileDef mirrors the top level of a definition file.
type fileDef struct {
	Hardware *hardwareDef `json:"hardware"`
	Sequence *sequenceDef `json:"sequence"`
}

type hardwareDef struct {
	Name          string            `json:"name"`
	DelayUnit     float64           `json:"delayUnit"`
	Outputs       []outputHWDef     `json:"outputs,omitempty"`
	Counters      []counterHWDef    `json:"counters,omitempty"`
	PulseCounters []pulseCounterDef `json:"pulseCounters,omitempty"`
	Register      registerDef       `json:"register"`
}

type outputHWDef struct {
	Name      string `json:"name"`
	ID        int    `json:"id"`
	Polarity  bool   `json:"polarity"`
	IdleState bool   `json:"idleState,omitempty"`
}

type counterHWDef struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

type pulseCounterDef struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
	Gate int    `json:"gate"`
}

type registerDef struct {
	Width int      `json:"width"`
	Bits  []bitDef `json:"bits,omitempty"`
}

type bitDef struct {
	Index  int `json:"index"`
	Output int `json:"output"`
	Input  int `json:"input"`
}

type sequenceDef struct {
	Name      string        `json:"name"`
	Length    float64       `json:"length"`
	Shots     int           `json:"shots"`
	Variants  int           `json:"variants"`
	Variables []variableDef `json:"variables,omitempty"`
	Outputs   []channelDef  `json:"outputs,omitempty"`
	Counters  []channelDef  `json:"counters,omitempty"`
	Controls  []channelDef  `json:"controls,omitempty"`
}

type variableDef struct {
	Name  string  `json:"name"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value,omitempty"`
	Start float64 `json:"start,omitempty"`
	Stop  float64 `json:"stop,omitempty"`
}

type channelDef struct {
	Channel string      `json:"channel"`
	Windows []windowDef `json:"windows,omitempty"`
	Jumps   []jumpDef   `json:"jumps,omitempty"` // control channels only
}

type windowDef struct {
	Name  string   `json:"name"`
	Start pointDef `json:"start"`
	End   pointDef `json:"end"`
}

// pointDef is a time point: exactly one of At, Variable or After must
// be set. After takes an optional Offset.
type pointDef struct {
	At       *float64   `json:"at,omitempty"`
	Variable string     `json:"variable,omitempty"`
	After    *refDef    `json:"after,omitempty"`
	Offset   *offsetDef `json:"offset,omitempty"`
}

type refDef struct {
	Kind string `json:"kind"` // start, end, jump, variable
	Name string `json:"name"`
}

type offsetDef struct {
	Value    *float64 `json:"value,omitempty"`
	Variable string   `json:"variable,omitempty"`
}

type jumpDef struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"` // conditional, goto, end
	Time       pointDef       `json:"time"`
	Window     string         `json:"window,omitempty"`
	Dest       *refDef        `json:"dest,omitempty"` // goto only
	Conditions []conditionDef `json:"conditions,omitempty"`
}

// conditionDef carries exactly one of Value, Threshold, Lo+Hi or Else.
type conditionDef struct {
	Value     *int      `json:"value,omitempty"`
	Threshold *int      `json:"threshold,omitempty"`
	Lo        *int      `json:"lo,omitempty"`
	Hi        *int      `json:"hi,omitempty"`
	Else      bool      `json:"else,omitempty"`
	Target    targetDef `json:"target"`
}

type targetDef struct {
	Terminate bool    `json:"terminate,omitempty"`
	Pass      bool    `json:"pass,omitempty"`
	Goto      *refDef `json:"goto,omitempty"`
}

func buildHardware(def *hardwareDef) (*seq.HardwareConfig, error) {
	hw := &seq.HardwareConfig{
		Name:      def.Name,
		DelayUnit: def.DelayUnit,
	}
	for _, o := range def.Outputs {
		hw.Outputs = append(hw.Outputs, seq.OutputHW{
			Name: o.Name, ID: o.ID, Polarity: o.Polarity, IdleState: o.IdleState,
		})
	}
	for _, c := range def.Counters {
		hw.Counters = append(hw.Counters, seq.CounterHW{Name: c.Name, ID: c.ID})
	}
	for _, p := range def.PulseCounters {
		hw.PulseCounters = append(hw.PulseCounters, seq.PulseCounterHW{
			Name: p.Name, ID: p.ID, Gate: p.Gate,
		})
	}
	hw.Register = seq.ControlRegister{
		Width: def.Register.Width,
		Bits:  make(map[int]seq.Bit, len(def.Register.Bits)),
	}
	for _, b := range def.Register.Bits {
		if _, dup := hw.Register.Bits[b.Index]; dup {
			return nil, loadError(ErrCodeBadDef, "register bit %d defined twice", b.Index)
		}
		hw.Register.Bits[b.Index] = seq.Bit{Output: b.Output, Input: b.Input}
	}
	return hw, nil
}

func buildSequence(def *sequenceDef, hw *seq.HardwareConfig) (*seq.Sequence, error) {
	s := &seq.Sequence{
		Name:     def.Name,
		Length:   def.Length,
		Shots:    def.Shots,
		Variants: def.Variants,
		Hardware: hw,
	}
	for _, v := range def.Variables {
		switch seq.VariableKind(v.Kind) {
		case seq.VariableConstant:
			s.Variables = append(s.Variables, seq.ConstantVariable(v.Name, v.Value))
		case seq.VariableLinear:
			s.Variables = append(s.Variables, seq.LinearVariable(v.Name, v.Start, v.Stop))
		default:
			return nil, loadError(ErrCodeBadDef, "variable %q: unknown kind %q", v.Name, v.Kind)
		}
	}
	for _, c := range def.Outputs {
		windows, err := buildWindows(c)
		if err != nil {
			return nil, err
		}
		s.Outputs = append(s.Outputs, seq.NewOutputChannel(c.Channel, windows...))
	}
	for _, c := range def.Counters {
		windows, err := buildWindows(c)
		if err != nil {
			return nil, err
		}
		s.Counters = append(s.Counters, seq.NewCounterChannel(c.Channel, windows...))
	}
	for _, c := range def.Controls {
		windows, err := buildWindows(c)
		if err != nil {
			return nil, err
		}
		var jumps []*seq.Jump
		for i := range c.Jumps {
			j, err := buildJump(&c.Jumps[i])
			if err != nil {
				return nil, err
			}
			jumps = append(jumps, j)
		}
		s.Controls = append(s.Controls, seq.NewControlChannel(c.Channel, windows, jumps))
	}
	return s, nil
}

func buildWindows(c channelDef) ([]*seq.TimeWindow, error) {
	var windows []*seq.TimeWindow
	for _, w := range c.Windows {
		start, err := buildPoint(w.Start, "window "+w.Name)
		if err != nil {
			return nil, err
		}
		end, err := buildPoint(w.End, "window "+w.Name)
		if err != nil {
			return nil, err
		}
		windows = append(windows, &seq.TimeWindow{Name: w.Name, Start: start, End: end})
	}
	return windows, nil
}

func buildPoint(def pointDef, entity string) (*seq.TimePoint, error) {
	set := 0
	if def.At != nil {
		set++
	}
	if def.Variable != "" {
		set++
	}
	if def.After != nil {
		set++
	}
	if set != 1 {
		return nil, loadError(ErrCodeBadDef,
			"%s: a time point needs exactly one of at, variable or after", entity)
	}
	switch {
	case def.At != nil:
		return seq.AbsolutePoint(*def.At), nil
	case def.Variable != "":
		return seq.VariablePoint(def.Variable), nil
	default:
		ref, err := buildRef(*def.After, entity)
		if err != nil {
			return nil, err
		}
		off, err := buildOffset(def.Offset, entity)
		if err != nil {
			return nil, err
		}
		return seq.RelativePoint(ref, off), nil
	}
}

func buildRef(def refDef, entity string) (*seq.Reference, error) {
	switch kind := seq.RefKind(def.Kind); kind {
	case seq.RefStart, seq.RefEnd, seq.RefJump, seq.RefVariable:
		return seq.NewReference(kind, def.Name), nil
	default:
		return nil, loadError(ErrCodeBadDef, "%s: unknown reference kind %q", entity, def.Kind)
	}
}

func buildOffset(def *offsetDef, entity string) (*seq.Offset, error) {
	if def == nil {
		return seq.AbsoluteOffset(0), nil
	}
	switch {
	case def.Value != nil && def.Variable == "":
		return seq.AbsoluteOffset(*def.Value), nil
	case def.Value == nil && def.Variable != "":
		return seq.VariableOffset(def.Variable), nil
	default:
		return nil, loadError(ErrCodeBadDef, "%s: an offset needs either value or variable", entity)
	}
}

func buildJump(def *jumpDef) (*seq.Jump, error) {
	entity := "jump " + def.Name
	t, err := buildPoint(def.Time, entity)
	if err != nil {
		return nil, err
	}
	switch seq.JumpKind(def.Kind) {
	case seq.JumpConditional:
		var conditions []*seq.Condition
		for i := range def.Conditions {
			cond, err := buildCondition(&def.Conditions[i], entity)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, cond)
		}
		return seq.NewConditionalJump(def.Name, t, def.Window, conditions...), nil
	case seq.JumpGoto:
		if def.Dest == nil {
			return nil, loadError(ErrCodeBadDef, "%s: goto needs a dest", entity)
		}
		ref, err := buildRef(*def.Dest, entity)
		if err != nil {
			return nil, err
		}
		return seq.NewGoto(def.Name, t, ref), nil
	case seq.JumpEnd:
		return seq.NewEnd(def.Name, t), nil
	default:
		return nil, loadError(ErrCodeBadDef, "%s: unknown jump kind %q", entity, def.Kind)
	}
}

func buildCondition(def *conditionDef, entity string) (*seq.Condition, error) {
	target, err := buildTarget(def.Target, entity)
	if err != nil {
		return nil, err
	}
	set := 0
	if def.Value != nil {
		set++
	}
	if def.Threshold != nil {
		set++
	}
	if def.Lo != nil || def.Hi != nil {
		set++
	}
	if def.Else {
		set++
	}
	if set != 1 {
		return nil, loadError(ErrCodeBadDef,
			"%s: a condition needs exactly one of value, threshold, lo/hi or else", entity)
	}
	switch {
	case def.Value != nil:
		return seq.ValueCondition(*def.Value, target), nil
	case def.Threshold != nil:
		return seq.ThresholdCond(*def.Threshold, target), nil
	case def.Lo != nil && def.Hi != nil:
		return seq.RangeCondition(*def.Lo, *def.Hi, target), nil
	case def.Else:
		return seq.ElseCondition(target), nil
	default:
		return nil, loadError(ErrCodeBadDef, "%s: a range condition needs both lo and hi", entity)
	}
}

func buildTarget(def targetDef, entity string) (seq.Target, error) {
	set := 0
	if def.Terminate {
		set++
	}
	if def.Pass {
		set++
	}
	if def.Goto != nil {
		set++
	}
	if set != 1 {
		return nil, loadError(ErrCodeBadDef,
			"%s: a target needs exactly one of terminate, pass or goto", entity)
	}
	switch {
	case def.Terminate:
		return &seq.Terminator{}, nil
	case def.Pass:
		return &seq.Pass{}, nil
	default:
		ref, err := buildRef(*def.Goto, entity)
		if err != nil {
			return nil, err
		}
		return &seq.Destination{Ref: ref}, nil
	}
}
