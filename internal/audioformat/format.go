// Package audioformat describes PCM stream shapes and the exclusive-mode
// negotiation table used by the capture and render endpoints.
package audioformat

import "fmt"

// Encoding identifies how samples are stored: linear PCM integers or
// IEEE floating point.
type Encoding int

const (
	// PCM is signed linear integer PCM.
	PCM Encoding = iota
	// Float is IEEE 754 floating point PCM.
	Float
)

func (e Encoding) String() string {
	if e == Float {
		return "float"
	}
	return "pcm"
}

// Channel mask bits, following the WAVEFORMATEXTENSIBLE convention the
// original implementation negotiates against.
const (
	SpeakerFrontLeft  uint32 = 0x1
	SpeakerFrontRight uint32 = 0x2
	SpeakerFrontCenter uint32 = 0x4
)

// Format describes one side of a PCM stream. Two formats are Equal iff
// every field matches byte-exact; Equal determines whether the resampler
// stage is engaged for a given capture/render pair.
type Format struct {
	SampleRate    uint32
	Channels      uint16
	ContainerBits uint16 // bits physically occupied per sample
	ValidBits     uint16 // bits that carry meaningful data (<= ContainerBits)
	Encoding      Encoding
	ChannelMask   uint32
}

// BlockAlign is the number of bytes per frame (one sample per channel).
func (f Format) BlockAlign() int {
	return int(f.Channels) * int(f.ContainerBits) / 8
}

// Equal reports whether two formats are byte-exact equivalent. Equivalent
// formats let the router bypass the resampler entirely.
func (f Format) Equal(other Format) bool {
	return f.SampleRate == other.SampleRate &&
		f.Channels == other.Channels &&
		f.ContainerBits == other.ContainerBits &&
		f.ValidBits == other.ValidBits &&
		f.Encoding == other.Encoding &&
		f.ChannelMask == other.ChannelMask
}

func (f Format) String() string {
	return fmt.Sprintf("%dch/%dHz/%d(%d)bit-%s", f.Channels, f.SampleRate, f.ContainerBits, f.ValidBits, f.Encoding)
}

// ChannelMaskFor infers a channel mask from a bare channel count, used
// when promoting a plain WAVEFORMATEX-shaped mix format to the extensible
// representation.
func ChannelMaskFor(channels uint16) uint32 {
	switch channels {
	case 1:
		return SpeakerFrontCenter
	case 2:
		return SpeakerFrontLeft | SpeakerFrontRight
	default:
		return 0
	}
}

// EncodingForContainerBits infers PCM vs. Float the way the original
// mix-format promotion does: 32-bit containers are assumed float, anything
// else is PCM. This only applies to mix formats reported as a plain
// WAVEFORMATEX; extensible formats carry their encoding explicitly.
func EncodingForContainerBits(bits uint16) Encoding {
	if bits == 32 {
		return Float
	}
	return PCM
}

// Candidate is one entry of the exclusive-mode negotiation priority list.
type Candidate struct {
	Channels      uint16
	SampleRate    uint32
	ValidBits     uint16
	ContainerBits uint16
	Encoding      Encoding
}

// Format expands a Candidate into a full Format with a derived channel mask.
func (c Candidate) Format() Format {
	return Format{
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		ContainerBits: c.ContainerBits,
		ValidBits:     c.ValidBits,
		Encoding:      c.Encoding,
		ChannelMask:   ChannelMaskFor(c.Channels),
	}
}

// ExclusivePriority is the 8-entry exclusive-mode negotiation table from
// §4.3: stereo variants precede mono, and 48 kHz float is tried first.
var ExclusivePriority = []Candidate{
	{Channels: 2, SampleRate: 48000, ValidBits: 32, ContainerBits: 32, Encoding: Float},
	{Channels: 2, SampleRate: 48000, ValidBits: 24, ContainerBits: 32, Encoding: PCM},
	{Channels: 2, SampleRate: 48000, ValidBits: 16, ContainerBits: 16, Encoding: PCM},
	{Channels: 2, SampleRate: 44100, ValidBits: 32, ContainerBits: 32, Encoding: Float},
	{Channels: 2, SampleRate: 44100, ValidBits: 24, ContainerBits: 32, Encoding: PCM},
	{Channels: 2, SampleRate: 44100, ValidBits: 16, ContainerBits: 16, Encoding: PCM},
	{Channels: 1, SampleRate: 48000, ValidBits: 16, ContainerBits: 16, Encoding: PCM},
	{Channels: 1, SampleRate: 44100, ValidBits: 16, ContainerBits: 16, Encoding: PCM},
}

// RingBufferFormat is the fixed 48 kHz/stereo/32-bit-float shape the
// router sizes its primary ring buffer against (§4.6 step 3), regardless
// of what capture and render eventually negotiate.
var RingBufferFormat = Format{
	SampleRate:    48000,
	Channels:      2,
	ContainerBits: 32,
	ValidBits:     32,
	Encoding:      Float,
	ChannelMask:   SpeakerFrontLeft | SpeakerFrontRight,
}
