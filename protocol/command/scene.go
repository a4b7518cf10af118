package command

import (
	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/flow"
)

// Scene is a state set_scene applies in one step, whatever the bulb's
// current power state.  The set of implementations is closed.
type Scene interface {
	validate() error
	params() []interface{}
}

// SceneColor switches to a color and brightness
type SceneColor struct {
	Red, Green, Blue int
	Brightness       int
}

func (s SceneColor) validate() error {
	if err := validateRGB(s.Red, s.Green, s.Blue); err != nil {
		return err
	}
	return checkRange(`brightness`, s.Brightness, MinBrightness, MaxBrightness)
}

func (s SceneColor) params() []interface{} {
	return []interface{}{`color`, packRGB(s.Red, s.Green, s.Blue), s.Brightness}
}

// SceneHSV switches to a hue, saturation and brightness
type SceneHSV struct {
	Hue, Saturation int
	Brightness      int
}

func (s SceneHSV) validate() error {
	if err := checkRange(`hue`, s.Hue, 0, MaxHue); err != nil {
		return err
	}
	if err := checkRange(`saturation`, s.Saturation, 0, MaxSaturation); err != nil {
		return err
	}
	return checkRange(`brightness`, s.Brightness, MinBrightness, MaxBrightness)
}

func (s SceneHSV) params() []interface{} {
	return []interface{}{`hsv`, s.Hue, s.Saturation, s.Brightness}
}

// SceneColorTemp switches to a color temperature and brightness
type SceneColorTemp struct {
	Degrees    int
	Brightness int
}

func (s SceneColorTemp) validate() error {
	if err := checkRange(`ct`, s.Degrees, MinTemperature, MaxTemperature); err != nil {
		return err
	}
	return checkRange(`brightness`, s.Brightness, MinBrightness, MaxBrightness)
}

func (s SceneColorTemp) params() []interface{} {
	return []interface{}{`ct`, s.Degrees, s.Brightness}
}

// SceneFlow starts a flow
type SceneFlow struct {
	Flow           flow.Flow
	MaxTransitions int
}

func (s SceneFlow) validate() error {
	return s.Flow.Validate(s.MaxTransitions)
}

func (s SceneFlow) params() []interface{} {
	return []interface{}{`cf`, s.Flow.TotalCount(), int(s.Flow.Action), s.Flow.Expression()}
}

// SceneAutoDelayOff switches on at Brightness and off again after Minutes
type SceneAutoDelayOff struct {
	Brightness int
	Minutes    int
}

func (s SceneAutoDelayOff) validate() error {
	if err := checkRange(`brightness`, s.Brightness, MinBrightness, MaxBrightness); err != nil {
		return err
	}
	if s.Minutes < 1 {
		return &common.ValidationError{Field: `minutes`, Value: s.Minutes, Reason: `must be at least 1`}
	}
	return nil
}

func (s SceneAutoDelayOff) params() []interface{} {
	return []interface{}{`auto_delay_off`, s.Brightness, s.Minutes}
}

// SetScene applies a Scene
type SetScene struct {
	Scene Scene
	Light LightType
}

func (c SetScene) Method() string { return c.Light.method(`set_scene`) }

func (c SetScene) Validate() error {
	if err := c.Light.validate(); err != nil {
		return err
	}
	if c.Scene == nil {
		return &common.ValidationError{Field: `scene`, Value: nil, Reason: `no scene`}
	}
	return c.Scene.validate()
}

func (c SetScene) Params() []interface{} { return c.Scene.params() }

func (SetScene) command() {}
