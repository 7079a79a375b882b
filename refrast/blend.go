package refrast

import "github.com/gogpu/gputypes"

// blend combines a shaded source color with the destination using the
// WebGPU blend equation. Colors are straight-alpha in [0, 1].
func blend(bs *gputypes.BlendState, src, dst, constant [4]float32) [4]float32 {
	var out [4]float32
	for ch := range 3 {
		out[ch] = blendChannel(bs.Color, src, dst, constant, ch)
	}
	out[3] = blendChannel(bs.Alpha, src, dst, constant, 3)
	return out
}

func blendChannel(c gputypes.BlendComponent, src, dst, constant [4]float32, ch int) float32 {
	s, d := src[ch], dst[ch]
	switch c.Operation {
	case gputypes.BlendOperationMin:
		return min(s, d)
	case gputypes.BlendOperationMax:
		return max(s, d)
	}

	fs := blendFactor(c.SrcFactor, src, dst, constant, ch)
	fd := blendFactor(c.DstFactor, src, dst, constant, ch)
	switch c.Operation {
	case gputypes.BlendOperationSubtract:
		return s*fs - d*fd
	case gputypes.BlendOperationReverseSubtract:
		return d*fd - s*fs
	default:
		return s*fs + d*fd
	}
}

func blendFactor(f gputypes.BlendFactor, src, dst, constant [4]float32, ch int) float32 {
	switch f {
	case gputypes.BlendFactorZero:
		return 0
	case gputypes.BlendFactorSrc:
		return src[ch]
	case gputypes.BlendFactorOneMinusSrc:
		return 1 - src[ch]
	case gputypes.BlendFactorSrcAlpha:
		return src[3]
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return 1 - src[3]
	case gputypes.BlendFactorDst:
		return dst[ch]
	case gputypes.BlendFactorOneMinusDst:
		return 1 - dst[ch]
	case gputypes.BlendFactorDstAlpha:
		return dst[3]
	case gputypes.BlendFactorOneMinusDstAlpha:
		return 1 - dst[3]
	case gputypes.BlendFactorSrcAlphaSaturated:
		if ch == 3 {
			return 1
		}
		return min(src[3], 1-dst[3])
	case gputypes.BlendFactorConstant:
		return constant[ch]
	case gputypes.BlendFactorOneMinusConstant:
		return 1 - constant[ch]
	default:
		// One, and Undefined treated as One.
		return 1
	}
}

// depthPasses applies the depth comparison of an incoming fragment depth
// against the stored value. Undefined behaves like Always.
func depthPasses(f gputypes.CompareFunction, incoming, stored float32) bool {
	switch f {
	case gputypes.CompareFunctionNever:
		return false
	case gputypes.CompareFunctionLess:
		return incoming < stored
	case gputypes.CompareFunctionEqual:
		return incoming == stored
	case gputypes.CompareFunctionLessEqual:
		return incoming <= stored
	case gputypes.CompareFunctionGreater:
		return incoming > stored
	case gputypes.CompareFunctionNotEqual:
		return incoming != stored
	case gputypes.CompareFunctionGreaterEqual:
		return incoming >= stored
	default:
		return true
	}
}

// toUnorm8 quantizes a [0, 1] channel to 8 bits, rounding to nearest.
func toUnorm8(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func fromUnorm8(v uint8) float32 {
	return float32(v) / 255
}
