package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds the peer-connection capability configuration.
type Config struct {
	ICEServers  []webrtc.ICEServer
	PLIInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		PLIInterval: 3 * time.Second,
	}
}

// Factory creates one capability instance per call instance.
type Factory struct {
	cfg     Config
	capture *TrackCapture
	logger  *zap.SugaredLogger
}

func NewFactory(cfg Config, capture *TrackCapture, logger *zap.SugaredLogger) *Factory {
	return &Factory{cfg: cfg, capture: capture, logger: logger}
}

func (f *Factory) NewMediaSession() (ports.MediaSession, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: f.cfg.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	s := &pionSession{
		pc:          pc,
		pliInterval: f.cfg.PLIInterval,
		done:        make(chan struct{}),
		logger:      f.logger,
	}

	if f.capture != nil {
		for _, track := range f.capture.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return nil, fmt.Errorf("failed to add local track: %w", err)
			}
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.mu.Lock()
		fn := s.onICE
		s.mu.Unlock()
		if fn == nil {
			return
		}
		init := c.ToJSON()
		fn(domain.ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go s.readRemote(track)
	})

	return s, nil
}

// pionSession drives one webrtc.PeerConnection as the black-box
// negotiation capability.
type pionSession struct {
	pc          *webrtc.PeerConnection
	pliInterval time.Duration

	mu      sync.Mutex
	onICE   func(domain.ICECandidate)
	onTrack func(kind string)

	done      chan struct{}
	closeOnce sync.Once

	logger *zap.SugaredLogger
}

func (s *pionSession) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (s *pionSession) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (s *pionSession) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	sdpType := webrtc.SDPTypeOffer
	if desc.Type == "answer" {
		sdpType = webrtc.SDPTypeAnswer
	}
	return s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP})
}

func (s *pionSession) HasRemoteDescription() bool {
	return s.pc.RemoteDescription() != nil
}

func (s *pionSession) AddICECandidate(cand domain.ICECandidate) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (s *pionSession) OnICECandidate(fn func(domain.ICECandidate)) {
	s.mu.Lock()
	s.onICE = fn
	s.mu.Unlock()
}

func (s *pionSession) OnRemoteTrack(fn func(kind string)) {
	s.mu.Lock()
	s.onTrack = fn
	s.mu.Unlock()
}

func (s *pionSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pc.Close()
	})
	return err
}

// readRemote drains one incoming track. The first packet, not
// signaling completion, is what proves media is actually flowing; it
// fires the remote-track callback. Video tracks also get a periodic
// PLI so the sender refreshes keyframes after loss.
func (s *pionSession) readRemote(track *webrtc.TrackRemote) {
	if track.Kind() == webrtc.RTPCodecTypeVideo && s.pliInterval > 0 {
		go s.sendPLI(track)
	}

	observed := false
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, _, err := track.ReadRTP()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if s.logger != nil {
				s.logger.Debugw("remote track read ended", "kind", track.Kind().String(), "error", err)
			}
			return
		}

		if !observed {
			observed = true
			s.mu.Lock()
			fn := s.onTrack
			s.mu.Unlock()
			if fn != nil {
				fn(track.Kind().String())
			}
		}
	}
}

func (s *pionSession) sendPLI(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(s.pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			})
			if err != nil {
				return
			}
		}
	}
}
