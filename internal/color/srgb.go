// Package color converts channel values between the sRGB transfer function
// and linear light, as done by GPUs for *-srgb texture formats.
//
// References:
//   - sRGB specification: https://www.w3.org/Graphics/Color/sRGB
//   - WebGPU texture formats: https://www.w3.org/TR/webgpu/#texture-formats
package color

import "math"

// decodeLUT maps every 8-bit sRGB value to linear [0, 1].
var decodeLUT [256]float32

func init() {
	for i := range decodeLUT {
		decodeLUT[i] = ToLinear(float32(i) / 255)
	}
}

// ToLinear applies the sRGB EOTF to a value in [0, 1].
func ToLinear(s float32) float32 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return float32(math.Pow(float64((s+0.055)/1.055), 2.4))
}

// ToSRGB applies the inverse EOTF to a linear value in [0, 1].
func ToSRGB(l float32) float32 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*float32(math.Pow(float64(l), 1.0/2.4)) - 0.055
}

// Decode8 returns the linear value of an 8-bit sRGB channel.
func Decode8(v uint8) float32 {
	return decodeLUT[v]
}

// Encode8 clamps a linear value to [0, 1] and stores it as an 8-bit sRGB
// channel, rounding to nearest.
func Encode8(l float32) uint8 {
	if !(l > 0) {
		return 0
	}
	if l >= 1 {
		return 255
	}
	return uint8(ToSRGB(l)*255 + 0.5)
}
