package command

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/flow"
)

const (
	MinBrightness  = 1
	MaxBrightness  = 100
	MaxHue         = 359
	MaxSaturation  = 100
	MinTemperature = flow.MinTemperature
	MaxTemperature = flow.MaxTemperature
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

// SetPower switches a light on or off
type SetPower struct {
	On         bool
	Light      LightType
	Transition Transition
	// Mode is only sent when switching on, PowerModeLast leaves it out
	Mode PowerMode
}

func (c SetPower) Method() string { return c.Light.method(`set_power`) }

func (c SetPower) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	if err := c.Mode.validate(); err != nil {
		return err
	}
	return c.Transition.Validate()
}

func (c SetPower) Params() []interface{} {
	state := `off`
	if c.On {
		state = `on`
	}
	params := append([]interface{}{state}, c.Transition.params()...)
	if c.On && c.Mode != PowerModeLast {
		params = append(params, int(c.Mode))
	}
	return params
}

func (SetPower) command() {}

// Toggle flips a light's power state
type Toggle struct {
	Light      LightType
	Transition Transition
}

func (c Toggle) Method() string { return c.Light.method(`toggle`) }

func (c Toggle) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	return c.Transition.Validate()
}

func (c Toggle) Params() []interface{} { return c.Transition.params() }

func (Toggle) command() {}

// DevToggle flips the main and ambient lights together
type DevToggle struct{}

func (DevToggle) Method() string { return `dev_toggle` }
func (DevToggle) Validate() error { return nil }
func (DevToggle) Params() []interface{} { return nil }
func (DevToggle) command() {}

// SetBrightness sets a light's brightness, 1-100
type SetBrightness struct {
	Brightness int
	Light      LightType
	Transition Transition
}

func (c SetBrightness) Method() string { return c.Light.method(`set_bright`) }

func (c SetBrightness) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	if err := checkRange(`brightness`, c.Brightness, MinBrightness, MaxBrightness); err != nil {
		return err
	}
	return c.Transition.Validate()
}

func (c SetBrightness) Params() []interface{} {
	return append([]interface{}{c.Brightness}, c.Transition.params()...)
}

func (SetBrightness) command() {}

// SetRGB sets a light's color, each channel 0-255
type SetRGB struct {
	Red, Green, Blue int
	Light            LightType
	Transition       Transition
}

func (c SetRGB) Method() string { return c.Light.method(`set_rgb`) }

func (c SetRGB) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	if err := validateRGB(c.Red, c.Green, c.Blue); err != nil {
		return err
	}
	return c.Transition.Validate()
}

func (c SetRGB) Params() []interface{} {
	return append([]interface{}{packRGB(c.Red, c.Green, c.Blue)}, c.Transition.params()...)
}

func (SetRGB) command() {}

func validateRGB(r, g, b int) error {
	if err := checkRange(`red`, r, 0, 255); err != nil {
		return err
	}
	if err := checkRange(`green`, g, 0, 255); err != nil {
		return err
	}
	return checkRange(`blue`, b, 0, 255)
}

func packRGB(r, g, b int) int {
	return common.RGB{Red: uint8(r), Green: uint8(g), Blue: uint8(b)}.Pack()
}

// SetHSV sets a light's hue (0-359) and saturation (0-100).  A non-zero
// Value (1-100) also sets the brightness, which the bulb only supports
// through a single step flow.
type SetHSV struct {
	Hue, Saturation int
	Value           int
	Light           LightType
	Transition      Transition
}

func (c SetHSV) Method() string {
	if c.Value > 0 {
		return c.Light.method(`start_cf`)
	}
	return c.Light.method(`set_hsv`)
}

func (c SetHSV) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	if err := checkRange(`hue`, c.Hue, 0, MaxHue); err != nil {
		return err
	}
	if err := checkRange(`saturation`, c.Saturation, 0, MaxSaturation); err != nil {
		return err
	}
	if err := checkRange(`value`, c.Value, 0, MaxBrightness); err != nil {
		return err
	}
	return c.Transition.Validate()
}

func (c SetHSV) Params() []interface{} {
	if c.Value == 0 {
		return append([]interface{}{c.Hue, c.Saturation}, c.Transition.params()...)
	}
	t := c.Transition.normalized()
	duration := t.Duration
	if t.Effect == EffectSudden || duration < flow.MinDuration {
		duration = flow.MinDuration
	}
	f := flow.Flow{
		Count:  1,
		Action: flow.ActionStay,
		Transitions: []flow.Transition{
			flow.HSVTransition(c.Hue, c.Saturation, duration, c.Value),
		},
	}
	return []interface{}{f.TotalCount(), int(f.Action), f.Expression()}
}

func (SetHSV) command() {}

// SetColorTemp sets a light's color temperature in Kelvin
type SetColorTemp struct {
	Degrees    int
	Light      LightType
	Transition Transition
}

func (c SetColorTemp) Method() string { return c.Light.method(`set_ct_abx`) }

func (c SetColorTemp) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	if err := checkRange(`ct`, c.Degrees, MinTemperature, MaxTemperature); err != nil {
		return err
	}
	return c.Transition.Validate()
}

func (c SetColorTemp) Params() []interface{} {
	return append([]interface{}{c.Degrees}, c.Transition.params()...)
}

func (SetColorTemp) command() {}

// SetDefault stores the current state as the power-on state, on the bulb
type SetDefault struct {
	Light LightType
}

func (c SetDefault) Method() string { return c.Light.method(`set_default`) }
func (c SetDefault) Validate() error { return c.Light.validate() }
func (c SetDefault) Params() []interface{} { return nil }
func (SetDefault) command() {}

// StartFlow starts a color flow
type StartFlow struct {
	Flow  flow.Flow
	Light LightType
	// MaxTransitions overrides flow.DefaultMaxTransitions
	MaxTransitions int
}

func (c StartFlow) Method() string { return c.Light.method(`start_cf`) }

func (c StartFlow) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	return c.Flow.Validate(c.MaxTransitions)
}

func (c StartFlow) Params() []interface{} {
	return []interface{}{c.Flow.TotalCount(), int(c.Flow.Action), c.Flow.Expression()}
}

func (StartFlow) command() {}

// StopFlow stops a running color flow
type StopFlow struct {
	Light LightType
}

func (c StopFlow) Method() string { return c.Light.method(`stop_cf`) }
func (c StopFlow) Validate() error { return c.Light.validate() }
func (c StopFlow) Params() []interface{} { return nil }
func (StopFlow) command() {}

// SetMusic switches music mode.  When On, the bulb connects back to
// Host:Port and accepts unacknowledged commands on that connection.
type SetMusic struct {
	On   bool
	Host string
	Port int
}

func (SetMusic) Method() string { return `set_music` }

func (c SetMusic) Validate() error {
	if !c.On {
		return nil
	}
	if net.ParseIP(c.Host) == nil {
		return &common.ValidationError{Field: `host`, Value: c.Host, Reason: `must be an IP address`}
	}
	return checkRange(`port`, c.Port, 1, 65535)
}

func (c SetMusic) Params() []interface{} {
	if !c.On {
		return []interface{}{0}
	}
	return []interface{}{1, c.Host, c.Port}
}

func (SetMusic) command() {}

// GetProp queries the named properties
type GetProp struct {
	Names []string
}

func (GetProp) Method() string { return `get_prop` }

func (c GetProp) Validate() error {
	if len(c.Names) == 0 {
		return &common.ValidationError{Field: `properties`, Value: 0, Reason: `at least one property is required`}
	}
	for _, name := range c.Names {
		if strings.TrimSpace(name) == `` {
			return &common.ValidationError{Field: `property`, Value: name, Reason: `must not be empty`}
		}
	}
	return nil
}

func (c GetProp) Params() []interface{} {
	params := make([]interface{}, len(c.Names))
	for i, name := range c.Names {
		params[i] = name
	}
	return params
}

func (GetProp) command() {}
func (GetProp) query() {}

// AdjustAction is the direction of a SetAdjust
type AdjustAction string

const (
	AdjustIncrease AdjustAction = `increase`
	AdjustDecrease AdjustAction = `decrease`
	AdjustCircle   AdjustAction = `circle`
)

// AdjustProperty is the property changed by a SetAdjust
type AdjustProperty string

const (
	AdjustBright AdjustProperty = `bright`
	AdjustCT     AdjustProperty = `ct`
	AdjustColour AdjustProperty = `color`
)

// SetAdjust nudges a property without knowing its current value
type SetAdjust struct {
	Action   AdjustAction
	Property AdjustProperty
	Light    LightType
}

func (c SetAdjust) Method() string { return c.Light.method(`set_adjust`) }

func (c SetAdjust) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	switch c.Action {
	case AdjustIncrease, AdjustDecrease, AdjustCircle:
	default:
		return &common.ValidationError{Field: `adjust action`, Value: c.Action, Reason: `must be increase, decrease or circle`}
	}
	switch c.Property {
	case AdjustBright, AdjustCT:
	case AdjustColour:
		if c.Action != AdjustCircle {
			return &common.ValidationError{Field: `adjust action`, Value: c.Action, Reason: `color can only be circled`}
		}
	default:
		return &common.ValidationError{Field: `adjust property`, Value: c.Property, Reason: `must be bright, ct or color`}
	}
	return nil
}

func (c SetAdjust) Params() []interface{} {
	return []interface{}{string(c.Action), string(c.Property)}
}

func (SetAdjust) command() {}

// AdjustBrightness changes brightness by a percentage (-100 to 100)
type AdjustBrightness struct {
	Percentage int
	Duration   time.Duration
	Light      LightType
}

func (c AdjustBrightness) Method() string { return c.Light.method(`adjust_bright`) }
func (c AdjustBrightness) Validate() error { return validateAdjust(c.Light, c.Percentage, c.Duration) }
func (c AdjustBrightness) Params() []interface{} { return adjustParams(c.Percentage, c.Duration) }
func (AdjustBrightness) command() {}

// AdjustColorTemp changes color temperature by a percentage (-100 to 100)
type AdjustColorTemp struct {
	Percentage int
	Duration   time.Duration
	Light      LightType
}

func (c AdjustColorTemp) Method() string { return c.Light.method(`adjust_ct`) }
func (c AdjustColorTemp) Validate() error { return validateAdjust(c.Light, c.Percentage, c.Duration) }
func (c AdjustColorTemp) Params() []interface{} { return adjustParams(c.Percentage, c.Duration) }
func (AdjustColorTemp) command() {}

// AdjustColor shifts the color by a percentage (-100 to 100)
type AdjustColor struct {
	Percentage int
	Duration   time.Duration
	Light      LightType
}

func (c AdjustColor) Method() string { return c.Light.method(`adjust_color`) }
func (c AdjustColor) Validate() error { return validateAdjust(c.Light, c.Percentage, c.Duration) }
func (c AdjustColor) Params() []interface{} { return adjustParams(c.Percentage, c.Duration) }
func (AdjustColor) command() {}

func adjustDuration(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultDuration
	}
	return d
}

func validateAdjust(light LightType, percentage int, d time.Duration) error {
	if err := light.validate(); err != nil {
		return err
	}
	if err := checkRange(`percentage`, percentage, -100, 100); err != nil {
		return err
	}
	return Transition{Duration: adjustDuration(d)}.Validate()
}

func adjustParams(percentage int, d time.Duration) []interface{} {
	return []interface{}{percentage, int(adjustDuration(d) / time.Millisecond)}
}

// SetName stores a name on the bulb
type SetName struct {
	Name string
}

func (SetName) Method() string { return `set_name` }

func (c SetName) Validate() error {
	if strings.TrimSpace(c.Name) == `` {
		return &common.ValidationError{Field: `name`, Value: c.Name, Reason: `must not be empty`}
	}
	return nil
}

func (c SetName) Params() []interface{} { return []interface{}{c.Name} }

func (SetName) command() {}

// cronTypeOff is the only cron job type bulbs implement: power off
const cronTypeOff = 0

// CronAdd schedules the bulb to turn off after Minutes
type CronAdd struct {
	Minutes int
}

func (CronAdd) Method() string { return `cron_add` }

func (c CronAdd) Validate() error {
	if c.Minutes < 1 {
		return &common.ValidationError{Field: `minutes`, Value: c.Minutes, Reason: `must be at least 1`}
	}
	return nil
}

func (c CronAdd) Params() []interface{} { return []interface{}{cronTypeOff, c.Minutes} }

func (CronAdd) command() {}

// CronGet queries the scheduled power off
type CronGet struct{}

func (CronGet) Method() string { return `cron_get` }
func (CronGet) Validate() error { return nil }
func (CronGet) Params() []interface{} { return []interface{}{cronTypeOff} }
func (CronGet) command() {}
func (CronGet) query() {}

// CronDel cancels the scheduled power off
type CronDel struct{}

func (CronDel) Method() string { return `cron_del` }
func (CronDel) Validate() error { return nil }
func (CronDel) Params() []interface{} { return []interface{}{cronTypeOff} }
func (CronDel) command() {}
