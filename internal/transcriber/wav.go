package transcriber

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/leonardotrapani/livescribe/internal/recording"
)

// encodeWAV wraps raw integer PCM in a RIFF/WAVE container.
func encodeWAV(raw []byte, format recording.Format) ([]byte, error) {
	bytesPerSample := format.BytesPerSample()
	if format.Encoding == "f32" || format.Encoding == "f64" || bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported sample format %q", format.Encoding)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid format: rate=%d channels=%d", format.SampleRate, format.Channels)
	}

	var buf bytes.Buffer

	bitsPerSample := bytesPerSample * 8
	byteRate := format.SampleRate * format.Channels * bytesPerSample
	blockAlign := format.Channels * bytesPerSample
	dataSize := len(raw)

	// WAV header
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))                // fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))                 // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))   // number of channels
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate)) // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))          // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))        // block align
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))     // bits per sample

	// data chunk
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(raw)

	return buf.Bytes(), nil
}
