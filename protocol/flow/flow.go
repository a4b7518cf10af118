// Package flow encodes color flows: sequences of transitions the bulb plays
// back on its own.
//
// A flow is sent as a compact expression of comma separated integers, four
// per transition: duration in milliseconds, mode, value and brightness.
package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pdf/goyeelight/common"
)

// Mode selects what a transition changes
type Mode int

const (
	ModeColor       Mode = 1
	ModeTemperature Mode = 2
	ModeSleep       Mode = 7
)

func (m Mode) String() string {
	switch m {
	case ModeColor:
		return `color`
	case ModeTemperature:
		return `temperature`
	case ModeSleep:
		return `sleep`
	default:
		return `mode(` + strconv.Itoa(int(m)) + `)`
	}
}

// Action is what the bulb does once a flow ends
type Action int

const (
	// ActionRecover restores the state from before the flow
	ActionRecover Action = 0
	// ActionStay keeps the state of the last transition
	ActionStay Action = 1
	// ActionOff turns the bulb off
	ActionOff Action = 2
)

func (a Action) String() string {
	switch a {
	case ActionRecover:
		return `recover`
	case ActionStay:
		return `stay`
	case ActionOff:
		return `off`
	default:
		return `action(` + strconv.Itoa(int(a)) + `)`
	}
}

// ParseAction parses the name of an action
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case `recover`:
		return ActionRecover, nil
	case `stay`:
		return ActionStay, nil
	case `off`:
		return ActionOff, nil
	}
	return 0, &common.ValidationError{Field: `action`, Value: s, Reason: `must be one of recover, stay, off`}
}

const (
	// MinDuration is the shortest transition a bulb accepts
	MinDuration = 50 * time.Millisecond
	// DefaultMaxTransitions is the longest flow a bulb accepts
	DefaultMaxTransitions = 100
	// BrightnessUnchanged leaves the brightness as it is
	BrightnessUnchanged = -1

	MinTemperature = 1700
	MaxTemperature = 6500
	MaxRGB         = 0xffffff
)

// Transition is a single step of a flow
type Transition struct {
	Duration   time.Duration
	Mode       Mode
	Value      int
	Brightness int
}

// RGBTransition changes to a color
func RGBTransition(red, green, blue uint8, duration time.Duration, brightness int) Transition {
	return Transition{
		Duration:   duration,
		Mode:       ModeColor,
		Value:      common.RGB{Red: red, Green: green, Blue: blue}.Pack(),
		Brightness: brightness,
	}
}

// HSVTransition changes to a hue (0-359) and saturation (0-100), converted to
// the equivalent color
func HSVTransition(hue, saturation int, duration time.Duration, brightness int) Transition {
	return Transition{
		Duration:   duration,
		Mode:       ModeColor,
		Value:      common.HSVToRGB(hue, saturation),
		Brightness: brightness,
	}
}

// TemperatureTransition changes to a color temperature in Kelvin
func TemperatureTransition(degrees int, duration time.Duration, brightness int) Transition {
	return Transition{
		Duration:   duration,
		Mode:       ModeTemperature,
		Value:      degrees,
		Brightness: brightness,
	}
}

// SleepTransition holds the current state for duration
func SleepTransition(duration time.Duration) Transition {
	return Transition{
		Duration: duration,
		Mode:     ModeSleep,
	}
}

// Validate checks the transition against the bulb's limits
func (t Transition) Validate() error {
	if t.Duration < MinDuration {
		return &common.ValidationError{Field: `duration`, Value: t.Duration, Reason: `must be at least ` + MinDuration.String()}
	}
	if t.Duration%time.Millisecond != 0 {
		return &common.ValidationError{Field: `duration`, Value: t.Duration, Reason: `must be a whole number of milliseconds`}
	}
	switch t.Mode {
	case ModeColor:
		if t.Value < 0 || t.Value > MaxRGB {
			return &common.ValidationError{Field: `rgb`, Value: t.Value, Reason: `must be within 0-16777215`}
		}
	case ModeTemperature:
		if t.Value < MinTemperature || t.Value > MaxTemperature {
			return &common.ValidationError{Field: `ct`, Value: t.Value, Reason: `must be within 1700-6500`}
		}
	case ModeSleep:
		return nil
	default:
		return &common.ValidationError{Field: `mode`, Value: int(t.Mode), Reason: `unknown transition mode`}
	}
	if t.Brightness != BrightnessUnchanged && (t.Brightness < 1 || t.Brightness > 100) {
		return &common.ValidationError{Field: `brightness`, Value: t.Brightness, Reason: `must be -1 or within 1-100`}
	}
	return nil
}

func (t Transition) fields() []int {
	return []int{int(t.Duration / time.Millisecond), int(t.Mode), t.Value, t.Brightness}
}

// Flow is a sequence of transitions played Count times
type Flow struct {
	// Count is the number of times the sequence is played, 0 loops forever
	Count int
	// Action is applied once the flow ends
	Action Action
	// Transitions are played in order
	Transitions []Transition
}

// Validate checks the flow against the bulb's limits.  maxTransitions <= 0
// uses DefaultMaxTransitions.
func (f *Flow) Validate(maxTransitions int) error {
	if maxTransitions <= 0 {
		maxTransitions = DefaultMaxTransitions
	}
	if len(f.Transitions) == 0 {
		return &common.ValidationError{Field: `transitions`, Value: 0, Reason: `flow needs at least one transition`}
	}
	if len(f.Transitions) > maxTransitions {
		return &common.ValidationError{Field: `transitions`, Value: len(f.Transitions), Reason: fmt.Sprintf(`flow is limited to %d transitions`, maxTransitions)}
	}
	if f.Count < 0 {
		return &common.ValidationError{Field: `count`, Value: f.Count, Reason: `must not be negative`}
	}
	switch f.Action {
	case ActionRecover, ActionStay, ActionOff:
	default:
		return &common.ValidationError{Field: `action`, Value: int(f.Action), Reason: `unknown action`}
	}
	for i, t := range f.Transitions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf(`transition %d: %w`, i, err)
		}
	}
	return nil
}

// TotalCount is the count parameter sent to the bulb, which counts single
// transitions rather than whole sequences
func (f *Flow) TotalCount() int {
	return f.Count * len(f.Transitions)
}

// Expression returns the encoded transitions
func (f *Flow) Expression() string {
	return Encode(f.Transitions)
}

// Encode serializes transitions in the order given
func Encode(transitions []Transition) string {
	var b strings.Builder
	for i, t := range transitions {
		for j, field := range t.fields() {
			if i > 0 || j > 0 {
				b.WriteString(`, `)
			}
			b.WriteString(strconv.Itoa(field))
		}
	}
	return b.String()
}

// Decode parses an expression back into its transitions
func Decode(expression string) ([]Transition, error) {
	if strings.TrimSpace(expression) == `` {
		return nil, nil
	}
	parts := strings.Split(expression, `,`)
	if len(parts)%4 != 0 {
		return nil, fmt.Errorf(`flow expression has %d fields, want a multiple of 4`, len(parts))
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf(`flow expression field %d: %w`, i, err)
		}
		values[i] = v
	}

	transitions := make([]Transition, 0, len(values)/4)
	for i := 0; i < len(values); i += 4 {
		transitions = append(transitions, Transition{
			Duration:   time.Duration(values[i]) * time.Millisecond,
			Mode:       Mode(values[i+1]),
			Value:      values[i+2],
			Brightness: values[i+3],
		})
	}
	return transitions, nil
}
