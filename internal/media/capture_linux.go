//go:build linux

package media

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// deviceStream wraps the tracks one GetUserMedia call produced.
type deviceStream struct {
	id     string
	tracks []mediadevices.Track
	stop   sync.Once
}

func (s *deviceStream) StreamID() string { return s.id }

func (s *deviceStream) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *deviceStream) Stop() {
	s.stop.Do(func() {
		for _, t := range s.tracks {
			_ = t.Close()
		}
	})
}

// Acquire captures local camera/mic as VP8+Opus, honoring the maxWidth,
// maxHeight, maxFrameRate and audio mandatory hints.
//
// GetUserMedia fails as a unit if either requested track can't be opened,
// so try video+audio first, then video-only, then audio-only; a missing
// or busy microphone must not prevent the camera from working and vice
// versa. Only when every attempt fails does Acquire return an error.
func (d *Devices) Acquire(c Constraints) (Stream, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	maxWidth, _ := intHint(c, KeyMaxWidth)
	maxHeight, _ := intHint(c, KeyMaxHeight)
	maxRate, _ := intHint(c, KeyMaxFrameRate)
	wantAudio := boolHint(c, KeyAudio)

	type attempt struct {
		video bool
		audio bool
		label string
	}
	attempts := []attempt{{true, wantAudio, "video+audio"}, {true, false, "video-only"}}
	if wantAudio {
		attempts = append(attempts, attempt{false, true, "audio-only"})
	}

	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
		if a.video {
			constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
				// Exclude MJPEG: some cameras expose an MJPEG V4L2 node
				// producing malformed frames that poison the VP8 encoder.
				mc.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				if maxWidth > 0 {
					mc.Width = prop.IntRanged{Max: maxWidth}
				}
				if maxHeight > 0 {
					mc.Height = prop.IntRanged{Max: maxHeight}
				}
				if maxRate > 0 {
					mc.FrameRate = prop.FloatRanged{Max: float32(maxRate)}
				}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		ms, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Printf("MEDIA: GetUserMedia (%s) failed: %v", a.label, err)
			continue
		}

		tracks := ms.GetTracks()
		if len(tracks) == 0 {
			continue
		}
		for _, track := range tracks {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Printf("MEDIA: local track ended: %v", err)
				}
			})
		}
		log.Printf("MEDIA: captured local media (%s), %d tracks", a.label, len(tracks))
		return &deviceStream{id: uuid.NewString(), tracks: tracks}, nil
	}

	return nil, errors.New("media: all capture attempts failed")
}
