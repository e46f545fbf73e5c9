package objectstore

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// ValidateWAV checks that data is a decodable PCM WAV file with a
// supported channel count and bit depth.
func ValidateWAV(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidAudio)
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return fmt.Errorf("%w: not a WAV file", ErrInvalidAudio)
	}
	if decoder.NumChans != 1 && decoder.NumChans != 2 {
		return fmt.Errorf("%w: unsupported number of channels: %d", ErrInvalidAudio, decoder.NumChans)
	}
	switch decoder.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: unsupported bit depth: %d", ErrInvalidAudio, decoder.BitDepth)
	}
	return nil
}
