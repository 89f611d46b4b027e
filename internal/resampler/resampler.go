// Package resampler converts a PCM byte stream from one sample rate to
// another. It generalizes the teacher's linear and polyphase float32
// resamplers into the push/drain/flush contract a routing pump needs, and
// additionally handles the container/bit-depth/encoding conversions a
// capture and render endpoint can disagree on.
package resampler

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lowlatency/audiobridge/internal/audioformat"
)

// Outcome reports what Configure decided for a given format pair, mirroring
// the Media Foundation resampler's Initialize return (S_OK / S_FALSE /
// MF_E_INVALIDMEDIATYPE that the original wraps as "unsupported").
type Outcome int

const (
	// NoOp means the formats are identical; the caller should route bytes
	// directly and never call Push/Drain/Flush.
	NoOp Outcome = iota
	// Ready means the resampler was configured and is accepting input.
	Ready
	// Unsupported means this format pair cannot be bridged.
	Unsupported
)

func (o Outcome) String() string {
	switch o {
	case NoOp:
		return "no-op"
	case Ready:
		return "ready"
	default:
		return "unsupported"
	}
}

// halfFilterLength matches AudioResampler.cpp's
// IWMResamplerProps::SetHalfFilterLength(60) "max quality" setting: a
// 121-tap windowed-sinc FIR (60 taps either side of the center tap).
const halfFilterLength = 60
const filterLength = 2*halfFilterLength + 1

// Resampler converts interleaved PCM from one audioformat.Format to
// another. It is not safe for concurrent use; the pump owns one instance
// per active session.
type Resampler struct {
	in, out   audioformat.Format
	channels  int
	ratio     float64
	filter    []float32
	history   []float32 // channels * (filterLength-1) samples of decoded input, for continuity across Push calls
	pending   []byte     // raw input not yet resampled: look-ahead frames and any incomplete frame
	configured bool
}

// New returns an unconfigured Resampler. Configure must be called before
// Push/Drain/Flush.
func New() *Resampler {
	return &Resampler{}
}

// Configure prepares the resampler for the given format pair. Calling it
// again resets all internal state, matching the original's behavior of
// re-running Initialize whenever the router reconfigures a session.
func (r *Resampler) Configure(in, out audioformat.Format) (Outcome, error) {
	r.in, r.out = in, out
	r.configured = false
	r.pending = nil
	r.history = nil
	r.filter = nil

	if in.Equal(out) {
		return NoOp, nil
	}
	if in.Channels != out.Channels {
		return Unsupported, fmt.Errorf("resampler: channel count change %d -> %d unsupported", in.Channels, out.Channels)
	}
	if in.Channels == 0 || in.SampleRate == 0 || out.SampleRate == 0 {
		return Unsupported, fmt.Errorf("resampler: invalid format pair %s -> %s", in, out)
	}

	r.channels = int(in.Channels)
	r.ratio = float64(out.SampleRate) / float64(in.SampleRate)
	r.filter = buildFilter(r.ratio)
	r.history = make([]float32, r.channels*(filterLength-1))
	r.configured = true
	return Ready, nil
}

// buildFilter designs a windowed-sinc low-pass filter. For downsampling
// the cutoff tracks the output Nyquist frequency to suppress aliasing;
// for upsampling the cutoff is the input Nyquist. process applies the
// filter at whole input-frame offsets only: each output frame takes the
// filtered value at the input frame at or before its position, with no
// fractional-phase interpolation between input frames.
func buildFilter(ratio float64) []float32 {
	cutoff := 0.5
	if ratio < 1.0 {
		cutoff = ratio * 0.5
	}

	filter := make([]float32, filterLength)
	mid := float64(filterLength-1) / 2.0
	for i := 0; i < filterLength; i++ {
		n := float64(i) - mid
		if n == 0 {
			filter[i] = float32(2.0 * cutoff)
			continue
		}
		sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
		window := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(filterLength-1))
		filter[i] = float32(sinc * window)
	}

	var sum float32
	for _, f := range filter {
		sum += f
	}
	if sum != 0 {
		for i := range filter {
			filter[i] /= sum
		}
	}
	return filter
}

// Push queues raw input bytes for conversion. It is an error to call Push
// before a successful Configure returning Ready.
func (r *Resampler) Push(data []byte) error {
	if !r.configured {
		return fmt.Errorf("resampler: Push before Configure")
	}
	r.pending = append(r.pending, data...)
	return nil
}

// Drain converts as much queued input as can be resampled without
// consuming the filter's trailing context, and returns the resulting
// bytes in the output format. Call
// Flush instead at end-of-stream to force out the remaining context.
func (r *Resampler) Drain() ([]byte, error) {
	if !r.configured {
		return nil, fmt.Errorf("resampler: Drain before Configure")
	}
	return r.process(false), nil
}

// Flush forces out any remaining buffered input (padding the filter with
// the decoded tail) and resets history, matching
// MFT_MESSAGE_COMMAND_DRAIN followed by a final ProcessOutput loop.
func (r *Resampler) Flush() ([]byte, error) {
	if !r.configured {
		return nil, fmt.Errorf("resampler: Flush before Configure")
	}
	out := r.process(true)
	r.history = make([]float32, r.channels*(filterLength-1))
	r.pending = nil
	return out, nil
}

// process decodes whole frames out of r.pending, resamples them against
// r.history for continuity, and re-encodes the result in the output
// format. When final is false, it holds back the last filterLength-1
// input frames in r.pending (read only as look-ahead) for the next call,
// while r.history carries the filterLength-1 frames before them, the same
// windowed approach the teacher's downsample() uses with its history buffer.
func (r *Resampler) process(final bool) []byte {
	blockAlign := r.in.BlockAlign()
	if blockAlign == 0 {
		return nil
	}
	frameCount := len(r.pending) / blockAlign

	reserve := 0
	if !final {
		reserve = filterLength - 1
	}
	usableFrames := frameCount - reserve
	if usableFrames <= 0 {
		if final && frameCount > 0 {
			usableFrames = frameCount
		} else {
			// not enough input yet; the raw bytes stay in r.pending
			// untouched until more Push calls arrive.
			return nil
		}
	}

	input := decodeBytesToFloat32(r.pending[:frameCount*blockAlign], r.in)
	r.pending = append([]byte(nil), r.pending[usableFrames*blockAlign:]...)

	combined := append(append([]float32(nil), r.history...), input...)
	histFrames := len(r.history) / r.channels

	outFrames := int(float64(usableFrames) * r.ratio)
	output := make([]float32, outFrames*r.channels)

	for ch := 0; ch < r.channels; ch++ {
		for i := 0; i < outFrames; i++ {
			srcPos := float64(i) / r.ratio
			srcIdx := int(srcPos) + histFrames

			var sample float32
			for j := 0; j < filterLength; j++ {
				frameIdx := srcIdx - filterLength/2 + j
				if frameIdx >= 0 && frameIdx < len(combined)/r.channels {
					sample += combined[frameIdx*r.channels+ch] * r.filter[j]
				}
			}
			output[i*r.channels+ch] = sample
		}
	}

	if !final {
		tailFrames := filterLength - 1
		totalFrames := histFrames + usableFrames
		start := totalFrames - tailFrames
		if start < 0 {
			start = 0
		}
		r.history = append([]float32(nil), combined[start*r.channels:totalFrames*r.channels]...)
		for len(r.history) < r.channels*(filterLength-1) {
			r.history = append([]float32{0}, r.history...)
		}
	}

	return encodeFloat32ToBytes(output, r.out)
}

// decodeBytesToFloat32 expands raw PCM/float bytes into interleaved
// float32 samples in [-1, 1].
func decodeBytesToFloat32(data []byte, f audioformat.Format) []float32 {
	bytesPerSample := int(f.ContainerBits) / 8
	if bytesPerSample == 0 {
		return nil
	}
	n := len(data) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		raw := data[i*bytesPerSample : (i+1)*bytesPerSample]
		out[i] = decodeSample(raw, f)
	}
	return out
}

func decodeSample(raw []byte, f audioformat.Format) float32 {
	if f.Encoding == audioformat.Float && f.ContainerBits == 32 {
		bits := binary.LittleEndian.Uint32(raw)
		return math.Float32frombits(bits)
	}

	var value int64
	switch f.ContainerBits {
	case 16:
		value = int64(int16(binary.LittleEndian.Uint16(raw)))
	case 24:
		v := int32(raw[0]) | int32(raw[1])<<8 | int32(raw[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		value = int64(v)
	case 32:
		value = int64(int32(binary.LittleEndian.Uint32(raw)))
	case 8:
		value = int64(raw[0]) - 128
	default:
		return 0
	}
	maxVal := float64(int64(1) << (f.ValidBits - 1))
	return float32(float64(value) / maxVal)
}

// encodeFloat32ToBytes narrows interleaved float32 samples back into the
// target format's byte layout, clamping to the representable range.
func encodeFloat32ToBytes(samples []float32, f audioformat.Format) []byte {
	bytesPerSample := int(f.ContainerBits) / 8
	if bytesPerSample == 0 {
		return nil
	}
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		encodeSample(out[i*bytesPerSample:(i+1)*bytesPerSample], s, f)
	}
	return out
}

func encodeSample(dst []byte, s float32, f audioformat.Format) {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}

	if f.Encoding == audioformat.Float && f.ContainerBits == 32 {
		binary.LittleEndian.PutUint32(dst, math.Float32bits(s))
		return
	}

	maxVal := float64(int64(1)<<(f.ValidBits-1)) - 1
	value := int64(float64(s) * maxVal)
	switch f.ContainerBits {
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(value)))
	case 24:
		v := int32(value)
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v >> 16)
	case 32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(value)))
	case 8:
		dst[0] = byte(value + 128)
	}
}
