// Package command builds the method and params of every command a bulb
// understands.
//
// Commands form a closed set: each operation is a distinct type implementing
// Command, and arguments are validated against the bulb's documented domain
// by Encode before anything is written to the network.
package command

import (
	"strings"
	"time"

	"github.com/pdf/goyeelight/common"
)

// Command is a single bulb operation.  The set of implementations is closed.
type Command interface {
	// Method returns the bulb method the command maps to
	Method() string
	// Validate checks the arguments against the bulb's domain
	Validate() error
	// Params returns the wire parameters, only meaningful once Validate
	// succeeded
	Params() []interface{}

	command()
}

// Query is a command whose value is its response, it cannot be sent
// without waiting for a reply
type Query interface {
	Command
	query()
}

// IsQuery reports whether cmd needs a response to be useful
func IsQuery(cmd Command) bool {
	_, ok := cmd.(Query)
	return ok
}

// Encode validates cmd and returns its method and params
func Encode(cmd Command) (string, []interface{}, error) {
	if cmd == nil {
		return ``, nil, &common.ValidationError{Field: `command`, Value: nil, Reason: `no command`}
	}
	if err := cmd.Validate(); err != nil {
		return ``, nil, err
	}
	params := cmd.Params()
	if params == nil {
		params = []interface{}{}
	}
	return cmd.Method(), params, nil
}

// Effect is how the bulb moves to a new state
type Effect string

const (
	EffectSmooth Effect = `smooth`
	EffectSudden Effect = `sudden`
)

// ParseEffect parses an effect name
func ParseEffect(s string) (Effect, error) {
	switch Effect(strings.ToLower(s)) {
	case EffectSmooth:
		return EffectSmooth, nil
	case EffectSudden:
		return EffectSudden, nil
	}
	return ``, &common.ValidationError{Field: `effect`, Value: s, Reason: `must be smooth or sudden`}
}

const (
	// MinSmoothDuration is the shortest smooth transition a bulb accepts
	MinSmoothDuration = 30 * time.Millisecond
	// DefaultDuration is used when a Transition is left empty
	DefaultDuration = 300 * time.Millisecond
)

// Transition controls the effect applied by state changing commands.  The
// zero value is a smooth change over DefaultDuration.
type Transition struct {
	Effect   Effect
	Duration time.Duration
}

func (t Transition) normalized() Transition {
	if t.Effect == `` {
		t.Effect = EffectSmooth
	}
	if t.Duration == 0 {
		t.Duration = DefaultDuration
	}
	return t
}

// Validate checks the effect and duration
func (t Transition) Validate() error {
	n := t.normalized()
	switch n.Effect {
	case EffectSmooth:
		if n.Duration < MinSmoothDuration {
			return &common.ValidationError{Field: `duration`, Value: t.Duration, Reason: `smooth transitions need at least ` + MinSmoothDuration.String()}
		}
	case EffectSudden:
		if n.Duration < 0 {
			return &common.ValidationError{Field: `duration`, Value: t.Duration, Reason: `must not be negative`}
		}
	default:
		return &common.ValidationError{Field: `effect`, Value: t.Effect, Reason: `must be smooth or sudden`}
	}
	return nil
}

func (t Transition) params() []interface{} {
	n := t.normalized()
	return []interface{}{string(n.Effect), int(n.Duration / time.Millisecond)}
}

// LightType selects the main or the ambient light of bulbs that have both
type LightType int

const (
	LightMain    LightType = 0
	LightAmbient LightType = 1
)

func (l LightType) method(name string) string {
	if l == LightAmbient {
		return `bg_` + name
	}
	return name
}

func (l LightType) validate() error {
	switch l {
	case LightMain, LightAmbient:
		return nil
	}
	return &common.ValidationError{Field: `light`, Value: int(l), Reason: `must be main or ambient`}
}

// PowerMode is the mode a bulb is switched on in
type PowerMode int

const (
	PowerModeLast      PowerMode = 0
	PowerModeNormal    PowerMode = 1
	PowerModeRGB       PowerMode = 2
	PowerModeHSV       PowerMode = 3
	PowerModeColorFlow PowerMode = 4
	PowerModeMoonlight PowerMode = 5
)

func (m PowerMode) validate() error {
	if m < PowerModeLast || m > PowerModeMoonlight {
		return &common.ValidationError{Field: `power mode`, Value: int(m), Reason: `must be within 0-5`}
	}
	return nil
}

func checkRange(field string, v, min, max int) error {
	if v < min || v > max {
		return &common.ValidationError{Field: field, Value: v, Reason: rangeReason(min, max)}
	}
	return nil
}

func rangeReason(min, max int) string {
	return `must be within ` + itoa(min) + `-` + itoa(max)
}
