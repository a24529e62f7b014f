package recording

import (
	"fmt"
	"log"
	"time"
)

// Format describes the PCM layout of every frame produced by a Source.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   string // pw-record sample format, e.g. "s16"
}

// BytesPerSample returns the size of one sample of one channel, or 0 for an unknown encoding.
func (f Format) BytesPerSample() int {
	switch f.Encoding {
	case "u8", "s8":
		return 1
	case "s16":
		return 2
	case "s24":
		return 3
	case "s32", "f32":
		return 4
	case "f64":
		return 8
	}
	return 0
}

// AudioFrame is one fixed-size block of PCM samples. Frames are never
// modified after the Source hands them out.
type AudioFrame struct {
	Data      []byte
	Format    Format
	Seq       uint64
	Timestamp time.Duration // monotonic offset since the source was opened
}

// Duration returns how much audio the frame holds.
func (f AudioFrame) Duration() time.Duration {
	bps := f.Format.BytesPerSample()
	if bps == 0 || f.Format.Channels <= 0 || f.Format.SampleRate <= 0 {
		return 0
	}
	samples := len(f.Data) / (bps * f.Format.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.Format.SampleRate)
}

// Config is the audio-session configuration passed to the driver on every open.
type Config struct {
	SampleRate int
	Channels   int
	Format     string
	BlockSize  int
	Device     string

	// PipeWire stream properties; empty means "let the server decide".
	MediaRole     string
	MediaCategory string
	Latency       string
}

func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		Format:        "s16",
		BlockSize:     3200, // 100ms of 16kHz mono s16
		Device:        "",
		MediaRole:     "Communication",
		MediaCategory: "Capture",
		Latency:       "",
	}
}

func (c Config) AudioFormat() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels, Encoding: c.Format}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("invalid BlockSize: %d", c.BlockSize)
	}
	if c.Format == "" {
		return NewAudioError(FormatUnsupported, fmt.Errorf("invalid Format: empty"))
	}
	bps := c.AudioFormat().BytesPerSample()
	if bps == 0 {
		return NewAudioError(FormatUnsupported, fmt.Errorf("unsupported sample format %q", c.Format))
	}
	frameBytes := bps * c.Channels
	if c.BlockSize%frameBytes != 0 {
		log.Printf("Recording: BlockSize %d not aligned to frame size %d; samples may split across frames",
			c.BlockSize, frameBytes)
	}
	return nil
}
