package common

import (
	"strconv"
)

// Property names reported by bulbs
const (
	PropPower       = `power`
	PropMainPower   = `main_power`
	PropBright      = `bright`
	PropCT          = `ct`
	PropRGB         = `rgb`
	PropHue         = `hue`
	PropSat         = `sat`
	PropColorMode   = `color_mode`
	PropFlowing     = `flowing`
	PropFlowParams  = `flow_params`
	PropDelayOff    = `delayoff`
	PropMusicOn     = `music_on`
	PropName        = `name`
	PropNightLight  = `nl_br`
	PropActiveMode  = `active_mode`
	PropBgPower     = `bg_power`
	PropBgLightMode = `bg_lmode`
	PropBgFlowing   = `bg_flowing`
	PropBgFlowParam = `bg_flow_params`
	PropBgCT        = `bg_ct`
	PropBgBright    = `bg_bright`
	PropBgHue       = `bg_hue`
	PropBgSat       = `bg_sat`
	PropBgRGB       = `bg_rgb`
	PropLanCtrl     = `lan_ctrl`
	PropSaveState   = `save_state`
)

// ColorMode is the mode a bulb is currently rendering in
type ColorMode int

const (
	ColorModeUnknown ColorMode = 0
	ColorModeRGB     ColorMode = 1
	ColorModeCT      ColorMode = 2
	ColorModeHSV     ColorMode = 3
)

// DefaultProperties are requested by a property refresh when no names are
// given
var DefaultProperties = []string{
	PropPower, PropMainPower, PropBright, PropCT, PropRGB, PropHue, PropSat,
	PropColorMode, PropFlowing, PropBgPower, PropBgLightMode, PropBgFlowing,
	PropBgCT, PropBgBright, PropBgHue, PropBgSat, PropBgRGB, PropNightLight,
	PropActiveMode,
}

var knownProperties = map[string]struct{}{}

func init() {
	for _, name := range []string{
		PropPower, PropMainPower, PropBright, PropCT, PropRGB, PropHue, PropSat,
		PropColorMode, PropFlowing, PropFlowParams, PropDelayOff, PropMusicOn,
		PropName, PropNightLight, PropActiveMode, PropBgPower, PropBgLightMode,
		PropBgFlowing, PropBgFlowParam, PropBgCT, PropBgBright, PropBgHue,
		PropBgSat, PropBgRGB, PropLanCtrl, PropSaveState,
	} {
		knownProperties[name] = struct{}{}
	}
}

// KnownProperty reports whether name is a property this library tracks
func KnownProperty(name string) bool {
	_, ok := knownProperties[name]
	return ok
}

// Properties maps property names to the string form the bulb reports them in
type Properties map[string]string

// Copy returns an independent copy of p
func (p Properties) Copy() Properties {
	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Power returns the main light's power state
func (p Properties) Power() (on bool, ok bool) {
	v, ok := p[PropPower]
	if !ok {
		return false, false
	}
	return v == `on`, true
}

// Brightness returns the main light's brightness, 1-100
func (p Properties) Brightness() (int, bool) {
	return p.Int(PropBright)
}

// ColorTemp returns the main light's color temperature in Kelvin
func (p Properties) ColorTemp() (int, bool) {
	return p.Int(PropCT)
}

// RGB returns the main light's color
func (p Properties) RGB() (RGB, bool) {
	v, ok := p.Int(PropRGB)
	if !ok {
		return RGB{}, false
	}
	return UnpackRGB(v), true
}

// HSV returns the main light's hue (0-359) and saturation (0-100)
func (p Properties) HSV() (hue, sat int, ok bool) {
	hue, hok := p.Int(PropHue)
	sat, sok := p.Int(PropSat)
	return hue, sat, hok && sok
}

// ColorMode returns the main light's color mode
func (p Properties) ColorMode() ColorMode {
	v, _ := p.Int(PropColorMode)
	return ColorMode(v)
}

// Flowing reports whether a flow is running on the main light
func (p Properties) Flowing() bool {
	v, _ := p.Int(PropFlowing)
	return v == 1
}

// Int parses the named property as an integer
func (p Properties) Int(name string) (int, bool) {
	v, ok := p[name]
	if !ok || v == `` {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// PropertyValue normalises a decoded JSON scalar into the string form used by
// Properties.  Objects, arrays and nulls are rejected.
func PropertyValue(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return ``, false
	}
}
