package seq

// VariableKind selects how a control variable produces its per-variant
// value.
type VariableKind string

const (
	// VariableConstant yields the same value for every variant.
	VariableConstant VariableKind = "constant"

	// VariableLinear yields values linearly spaced between Start and
	// Stop across all variants (both endpoints included).
	VariableLinear VariableKind = "linear"
)

// ControlVariable takes on one value per variant and can be shared by
// any number of time points.
type ControlVariable struct {
	Name  string
	Kind  VariableKind
	Value float64 // constant
	Start float64 // linear
	Stop  float64 // linear
}

// ConstantVariable builds a variable with the same value in all variants.
func ConstantVariable(name string, value float64) *ControlVariable {
	return &ControlVariable{Name: name, Kind: VariableConstant, Value: value}
}

// LinearVariable builds a variable swept linearly from start to stop.
func LinearVariable(name string, start, stop float64) *ControlVariable {
	return &ControlVariable{Name: name, Kind: VariableLinear, Start: start, Stop: stop}
}

// ValueFor returns the variable's value for the given variant out of
// variants total.
func (v *ControlVariable) ValueFor(variant, variants int) (float64, error) {
	if variant < 0 || variant >= variants {
		return 0, newError(ErrCodeInvalidDefinition, v.Name,
			"variant %d outside of %d variants", variant, variants)
	}
	switch v.Kind {
	case VariableConstant:
		return v.Value, nil
	case VariableLinear:
		if variants == 1 {
			return v.Start, nil
		}
		step := (v.Stop - v.Start) / float64(variants-1)
		return v.Start + float64(variant)*step, nil
	}
	return 0, newError(ErrCodeInvalidDefinition, v.Name,
		"invalid control variable kind %q", v.Kind)
}

func (v *ControlVariable) verify() error {
	if v.Name == "" {
		return newError(ErrCodeInvalidDefinition, "", "control variable without a name")
	}
	switch v.Kind {
	case VariableConstant, VariableLinear:
		return nil
	}
	return newError(ErrCodeInvalidDefinition, v.Name,
		"invalid control variable kind %q", v.Kind)
}
