package media

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// rtpWriter is the shared surface of the pion container writers.
type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
	Close() error
}

// DiskSink renders a remote stream by recording it: VP8 video goes to an
// .ivf file and Opus audio to an .ogg file in the configured directory.
// It is the headless stand-in for a video element, useful for the CLI and
// for verifying that remote media actually flowed.
//
// Remote tracks trickle in one at a time, so attaching the same stream
// again starts writers only for tracks not yet being recorded.
type DiskSink struct {
	dir string

	mu        sync.Mutex
	current   string
	ctx       context.Context
	cancel    context.CancelFunc
	writers   []rtpWriter
	recording map[string]bool // track ID to writer running
}

var _ Sink = (*DiskSink)(nil)

// NewDiskSink records attached streams under dir.
func NewDiskSink(dir string) *DiskSink {
	return &DiskSink{dir: dir, recording: make(map[string]bool)}
}

// Attach starts recording src. A different stream ID replaces the current
// recording; the same ID only picks up newly arrived tracks. Sources other
// than a RemoteStream are ignored; local capture is not re-encoded.
func (s *DiskSink) Attach(src Source) {
	rs, ok := src.(RemoteStream)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != rs.ID {
		s.detachLocked()
		s.current = rs.ID
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	for _, track := range rs.Tracks {
		if s.recording[track.ID()] {
			continue
		}
		w, err := s.newWriter(rs.ID, track)
		if err != nil {
			log.Printf("MEDIA: disk sink writer for %s: %v", track.Kind(), err)
			continue
		}
		s.recording[track.ID()] = true
		s.writers = append(s.writers, w)
		go record(s.ctx, track, w)
	}
}

func (s *DiskSink) newWriter(streamID string, track *webrtc.TrackRemote) (rtpWriter, error) {
	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		return ivfwriter.New(filepath.Join(s.dir, streamID+"-video.ivf"))
	default:
		return oggwriter.New(filepath.Join(s.dir, streamID+"-audio.ogg"), 48000, 2)
	}
}

// record pumps RTP packets from track into w until the track ends or the
// sink is detached.
func record(ctx context.Context, track *webrtc.TrackRemote, w rtpWriter) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !strings.Contains(err.Error(), "EOF") {
				log.Printf("MEDIA: disk sink read: %v", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := w.WriteRTP(pkt); err != nil {
			log.Printf("MEDIA: disk sink write: %v", err)
			return
		}
	}
}

func (s *DiskSink) detachLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for _, w := range s.writers {
		_ = w.Close()
	}
	s.writers = nil
	s.recording = make(map[string]bool)
	s.current = ""
}

// Detach stops recording and finalizes the container files. Idempotent.
func (s *DiskSink) Detach() {
	s.mu.Lock()
	s.detachLocked()
	s.mu.Unlock()
}
