// Package audio converts the speech synthesis payload into playable forms.
//
// The Gemini TTS endpoint returns headerless 16-bit little-endian PCM at
// 24 kHz mono. This package normalizes it for local playback and wraps it
// in a RIFF/WAV container for browser delivery.
package audio

import "encoding/binary"

// PCM format of the synthesized speech payload.
const (
	SampleRate     = 24000
	NumChannels    = 1
	BitsPerSample  = 16
	bytesPerSample = BitsPerSample / 8
)

// DecodePCM interprets raw s16le samples and normalizes them to the
// [-1, 1) float range. A trailing odd byte is ignored.
func DecodePCM(data []byte) []float32 {
	n := len(data) / bytesPerSample
	samples := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// EncodePCM converts normalized float samples back to raw s16le bytes.
// Values outside [-1, 1) are clamped.
func EncodePCM(samples []float32) []byte {
	data := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(int16(v)))
	}
	return data
}

// WAV wraps raw PCM in a RIFF container (16-bit mono, 24 kHz) so browsers
// can play the speak endpoint's response directly.
func WAV(pcm []byte) []byte {
	const headerSize = 44
	byteRate := SampleRate * NumChannels * bytesPerSample
	blockAlign := NumChannels * bytesPerSample

	buf := make([]byte, headerSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], NumChannels)
	binary.LittleEndian.PutUint32(buf[24:28], SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}
