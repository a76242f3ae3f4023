package media

import (
	"context"
	"fmt"
	"sync"

	"livesession/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// TrackCapture owns the local outbound media tracks. Acquire runs
// before any relay join: a failure here is fatal to the call attempt.
// Release is the single idempotent cleanup routine invoked on every
// exit path.
type TrackCapture struct {
	mu       sync.Mutex
	audio    *webrtc.TrackLocalStaticRTP
	video    *webrtc.TrackLocalStaticRTP
	acquired bool
	released bool
}

func NewTrackCapture() *TrackCapture {
	return &TrackCapture{}
}

func (c *TrackCapture) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acquired && !c.released {
		return nil
	}

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "livesession-audio",
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaAccessDenied, err)
	}
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "livesession-video",
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaAccessDenied, err)
	}

	c.audio = audio
	c.video = video
	c.acquired = true
	c.released = false
	return nil
}

func (c *TrackCapture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.audio = nil
	c.video = nil
}

func (c *TrackCapture) Tracks() []*webrtc.TrackLocalStaticRTP {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acquired || c.released {
		return nil
	}
	return []*webrtc.TrackLocalStaticRTP{c.audio, c.video}
}

// WriteAudio feeds one RTP packet into the outbound audio track. The
// encoder pipeline upstream owns pacing and payload format.
func (c *TrackCapture) WriteAudio(pkt *rtp.Packet) error {
	c.mu.Lock()
	track := c.audio
	c.mu.Unlock()
	if track == nil {
		return domain.ErrMediaAccessDenied
	}
	return track.WriteRTP(pkt)
}

// WriteVideo feeds one RTP packet into the outbound video track.
func (c *TrackCapture) WriteVideo(pkt *rtp.Packet) error {
	c.mu.Lock()
	track := c.video
	c.mu.Unlock()
	if track == nil {
		return domain.ErrMediaAccessDenied
	}
	return track.WriteRTP(pkt)
}
