package seq

// TimeWindow is a [start, end) period during which a sequence channel is
// active. Once resolved for a variant, start must not exceed end.
type TimeWindow struct {
	Name  string
	Start *TimePoint
	End   *TimePoint
}

// AbsoluteWindow builds a window with constant start and end times.
func AbsoluteWindow(name string, start, end float64) *TimeWindow {
	return &TimeWindow{
		Name:  name,
		Start: AbsolutePoint(start),
		End:   AbsolutePoint(end),
	}
}

// WindowFromStart builds a window of a fixed length anchored at start.
func WindowFromStart(name string, start, length float64) *TimeWindow {
	return &TimeWindow{
		Name:  name,
		Start: AbsolutePoint(start),
		End:   RelativePoint(NewReference(RefStart, name), AbsoluteOffset(length)),
	}
}

// Times evaluates both endpoints for one variant.
func (w *TimeWindow) Times(values Values) (start, end float64, err error) {
	start, err = w.Start.Time(values)
	if err != nil {
		return 0, 0, err
	}
	end, err = w.End.Time(values)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func (w *TimeWindow) resolveReferences(s *Sequence) error {
	if w.Start != nil {
		if err := w.Start.resolve(s); err != nil {
			return err
		}
	}
	if w.End != nil {
		if err := w.End.resolve(s); err != nil {
			return err
		}
	}
	return nil
}

func (w *TimeWindow) verify(values Values, length float64) error {
	if w.Name == "" {
		return newError(ErrCodeInvalidDefinition, "", "time window without a name")
	}
	if w.Start == nil || w.End == nil {
		return newError(ErrCodeInvalidDefinition, w.Name,
			"time window needs both a start and an end point")
	}
	if err := w.Start.verify(w.Name, values, length); err != nil {
		return err
	}
	if err := w.End.verify(w.Name, values, length); err != nil {
		return err
	}
	start, end, err := w.Times(values)
	if err != nil {
		return err
	}
	if start > end {
		return newError(ErrCodeInvalidDefinition, w.Name,
			"window has negative length (%0.2f > %0.2f)", start, end)
	}
	return nil
}

func (w *TimeWindow) controlVariables() []string {
	return append(w.Start.controlVariables(), w.End.controlVariables()...)
}
