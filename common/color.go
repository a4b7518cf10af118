package common

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGB is an 8-bit per channel color
type RGB struct {
	Red   uint8
	Green uint8
	Blue  uint8
}

// Pack returns the color in the 24-bit integer form used on the wire
func (c RGB) Pack() int {
	return int(c.Red)<<16 | int(c.Green)<<8 | int(c.Blue)
}

// UnpackRGB splits a 24-bit integer color into its channels
func UnpackRGB(v int) RGB {
	return RGB{
		Red:   uint8(v >> 16 & 0xff),
		Green: uint8(v >> 8 & 0xff),
		Blue:  uint8(v & 0xff),
	}
}

// HSVToRGB converts a hue (0-359) and saturation (0-100) at full value to the
// 24-bit color the bulbs expect in flows.  Hue is scaled over 359 steps,
// matching the bulb's own hue range.
func HSVToRGB(hue, saturation int) int {
	h := math.Mod(float64(hue)*360/359, 360)
	r, g, b := colorful.Hsv(h, float64(saturation)/100, 1).RGB255()
	return RGB{Red: r, Green: g, Blue: b}.Pack()
}
