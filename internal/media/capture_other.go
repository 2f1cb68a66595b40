//go:build !linux

package media

import "errors"

// Acquire is unavailable off Linux; the VP8/Opus encoder stack needs
// cgo bindings that are only wired up for V4L2/ALSA capture.
func (d *Devices) Acquire(_ Constraints) (Stream, error) {
	return nil, errors.New("media: local capture not supported on this platform")
}
