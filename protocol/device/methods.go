package device

import (
	"context"
	"time"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/command"
	"github.com/pdf/goyeelight/protocol/flow"
)

type callOptions struct {
	effect   command.Effect
	duration time.Duration
	light    command.LightType
	mode     command.PowerMode
}

func (o callOptions) transition() command.Transition {
	return command.Transition{Effect: o.effect, Duration: o.duration}
}

// Option overrides the session defaults for a single call
type Option func(*callOptions)

// WithEffect sets the effect of the change
func WithEffect(effect command.Effect) Option {
	return func(o *callOptions) {
		o.effect = effect
	}
}

// WithDuration sets the duration of the change
func WithDuration(duration time.Duration) Option {
	return func(o *callOptions) {
		o.duration = duration
	}
}

// WithLight targets the main or the ambient light
func WithLight(light command.LightType) Option {
	return func(o *callOptions) {
		o.light = light
	}
}

// WithPowerMode sets the mode the bulb is switched on in
func WithPowerMode(mode command.PowerMode) Option {
	return func(o *callOptions) {
		o.mode = mode
	}
}

func (b *Bulb) options(opts []Option) callOptions {
	o := callOptions{
		effect:   b.config.Effect,
		duration: b.config.Duration,
		mode:     b.config.PowerMode,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (b *Bulb) exec(ctx context.Context, cmd command.Command) error {
	_, err := b.Send(ctx, cmd)
	return err
}

// execOn runs cmd, switching the light on first when AutoOn is set.  cmd is
// validated before anything is sent.
func (b *Bulb) execOn(ctx context.Context, o callOptions, cmd command.Command) error {
	if _, _, err := command.Encode(cmd); err != nil {
		return err
	}
	if err := b.ensureOn(ctx, o); err != nil {
		return err
	}
	return b.exec(ctx, cmd)
}

func (b *Bulb) ensureOn(ctx context.Context, o callOptions) error {
	if !b.config.AutoOn || b.MusicMode() {
		return nil
	}

	name := common.PropPower
	if o.light == command.LightAmbient {
		name = common.PropBgPower
	}
	power, ok := b.props.Get(name)
	if !ok {
		props, err := b.GetProperties(ctx, name)
		if err != nil {
			return err
		}
		power = props[name]
	}
	if power == `on` {
		return nil
	}

	common.Log.Debugf("Switching %s on before changing it", b.ID())
	return b.exec(ctx, command.SetPower{On: true, Light: o.light, Transition: o.transition(), Mode: o.mode})
}

// TurnOn switches the light on
func (b *Bulb) TurnOn(ctx context.Context, opts ...Option) error {
	return b.SetPower(ctx, true, opts...)
}

// TurnOff switches the light off
func (b *Bulb) TurnOff(ctx context.Context, opts ...Option) error {
	return b.SetPower(ctx, false, opts...)
}

// SetPower switches the light on or off
func (b *Bulb) SetPower(ctx context.Context, on bool, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.SetPower{On: on, Light: o.light, Transition: o.transition(), Mode: o.mode})
}

// SetPowerMode switches the light on in mode
func (b *Bulb) SetPowerMode(ctx context.Context, mode command.PowerMode, opts ...Option) error {
	return b.SetPower(ctx, true, append(opts, WithPowerMode(mode))...)
}

// Toggle flips the light's power state
func (b *Bulb) Toggle(ctx context.Context, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.Toggle{Light: o.light, Transition: o.transition()})
}

// DevToggle flips the main and ambient lights together
func (b *Bulb) DevToggle(ctx context.Context) error {
	return b.exec(ctx, command.DevToggle{})
}

// SetBrightness sets the brightness, 1-100
func (b *Bulb) SetBrightness(ctx context.Context, brightness int, opts ...Option) error {
	o := b.options(opts)
	return b.execOn(ctx, o, command.SetBrightness{Brightness: brightness, Light: o.light, Transition: o.transition()})
}

// SetRGB sets the color, each channel 0-255
func (b *Bulb) SetRGB(ctx context.Context, red, green, blue int, opts ...Option) error {
	o := b.options(opts)
	return b.execOn(ctx, o, command.SetRGB{Red: red, Green: green, Blue: blue, Light: o.light, Transition: o.transition()})
}

// SetHSV sets the hue (0-359) and saturation (0-100).  A value of 1-100
// also sets the brightness, 0 leaves it unchanged.
func (b *Bulb) SetHSV(ctx context.Context, hue, saturation, value int, opts ...Option) error {
	o := b.options(opts)
	return b.execOn(ctx, o, command.SetHSV{Hue: hue, Saturation: saturation, Value: value, Light: o.light, Transition: o.transition()})
}

// SetColorTemp sets the color temperature, 1700-6500K
func (b *Bulb) SetColorTemp(ctx context.Context, degrees int, opts ...Option) error {
	o := b.options(opts)
	return b.execOn(ctx, o, command.SetColorTemp{Degrees: degrees, Light: o.light, Transition: o.transition()})
}

// SetDefault stores the current state as the bulb's power-on state
func (b *Bulb) SetDefault(ctx context.Context, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.SetDefault{Light: o.light})
}

// SetScene applies scene whatever the current power state
func (b *Bulb) SetScene(ctx context.Context, scene command.Scene, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.SetScene{Scene: scene, Light: o.light})
}

// StartFlow starts a color flow
func (b *Bulb) StartFlow(ctx context.Context, f flow.Flow, opts ...Option) error {
	o := b.options(opts)
	return b.execOn(ctx, o, command.StartFlow{Flow: f, Light: o.light, MaxTransitions: b.config.MaxTransitions})
}

// StopFlow stops a running color flow
func (b *Bulb) StopFlow(ctx context.Context, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.StopFlow{Light: o.light})
}

// SetName stores name on the bulb
func (b *Bulb) SetName(ctx context.Context, name string) error {
	return b.exec(ctx, command.SetName{Name: name})
}

// SetAdjust nudges a property without knowing its current value
func (b *Bulb) SetAdjust(ctx context.Context, action command.AdjustAction, property command.AdjustProperty, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.SetAdjust{Action: action, Property: property, Light: o.light})
}

// AdjustBrightness changes the brightness by percentage, -100 to 100
func (b *Bulb) AdjustBrightness(ctx context.Context, percentage int, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.AdjustBrightness{Percentage: percentage, Duration: o.duration, Light: o.light})
}

// AdjustColorTemp changes the color temperature by percentage, -100 to 100
func (b *Bulb) AdjustColorTemp(ctx context.Context, percentage int, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.AdjustColorTemp{Percentage: percentage, Duration: o.duration, Light: o.light})
}

// AdjustColor shifts the color by percentage, -100 to 100
func (b *Bulb) AdjustColor(ctx context.Context, percentage int, opts ...Option) error {
	o := b.options(opts)
	return b.exec(ctx, command.AdjustColor{Percentage: percentage, Duration: o.duration, Light: o.light})
}

// GetProperties queries the bulb for names, or common.DefaultProperties
// when none are given.  Properties the bulb does not support come back
// empty, and they are left out of the cache along with names that are not
// common.KnownProperty.
func (b *Bulb) GetProperties(ctx context.Context, names ...string) (common.Properties, error) {
	if len(names) == 0 {
		names = common.DefaultProperties
	}
	result, err := b.Send(ctx, command.GetProp{Names: names})
	if err != nil {
		return nil, err
	}

	values := result.Strings()
	props := make(common.Properties, len(names))
	changes := make(common.Properties, len(names))
	for i, name := range names {
		var value string
		if i < len(values) {
			value = values[i]
		}
		props[name] = value
		if value != `` && common.KnownProperty(name) {
			changes[name] = value
		}
	}
	b.props.Merge(changes)

	return props, nil
}

// CronAdd switches the bulb off after minutes
func (b *Bulb) CronAdd(ctx context.Context, minutes int) error {
	return b.exec(ctx, command.CronAdd{Minutes: minutes})
}

// CronGet returns the minutes left before the scheduled power off, 0 when
// none is scheduled
func (b *Bulb) CronGet(ctx context.Context) (int, error) {
	result, err := b.Send(ctx, command.CronGet{})
	if err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, nil
	}
	job, ok := result[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	delay, _ := job[`delay`].(float64)
	return int(delay), nil
}

// CronDel cancels the scheduled power off
func (b *Bulb) CronDel(ctx context.Context) error {
	return b.exec(ctx, command.CronDel{})
}
