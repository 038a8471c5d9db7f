package capture

import (
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/capturectl/internal/errors"
	"codeberg.org/mutker/capturectl/internal/media"
	"codeberg.org/mutker/capturectl/internal/telemetry"
)

const (
	simAudioRate       = 48000
	simAudioBufferSecs = 0.05
	simFramePayload    = 256
)

// SimulatedProvider is a capture provider that synthesizes frames and audio
// at the requested rate. It backs the engine on platforms without native
// capture bindings and keeps the pipeline fully exercisable in tests.
type SimulatedProvider struct {
	// DenyPermission makes every Open fail as if the OS refused screen
	// recording access.
	DenyPermission bool

	// TargetList overrides the default synthetic targets.
	TargetList []Target
}

// NewSimulatedProvider returns a provider with one synthetic display and one
// synthetic window.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		TargetList: []Target{
			{ID: 1, Kind: TargetDisplay, Width: 1920, Height: 1080, OnScreen: true},
			{ID: 101, Kind: TargetWindow, Title: "Desktop", AppName: "System", Width: 1280, Height: 720, OnScreen: true},
		},
	}
}

func (p *SimulatedProvider) Targets() ([]Target, error) {
	return p.TargetList, nil
}

func (p *SimulatedProvider) Open(req OpenRequest) (Stream, error) {
	errFactory := errors.New()

	if p.DenyPermission {
		return nil, errFactory.New(errors.ErrPermissionDenied)
	}

	var target *Target
	for i := range p.TargetList {
		if p.TargetList[i].ID == req.Target.ID {
			target = &p.TargetList[i]
			break
		}
	}
	if target == nil {
		return nil, errFactory.WithData(errors.ErrNoSourceAvailable, req.Target.ID)
	}

	return &simStream{
		target:     *target,
		frameRate:  req.FrameRate,
		microphone: req.Microphone,
		stop:       make(chan struct{}),
	}, nil
}

type simStream struct {
	target     Target
	frameRate  int
	microphone bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (s *simStream) Start(onFrame FrameHandler, onAudio AudioHandler) error {
	startedAt := time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		interval := time.Second / time.Duration(s.frameRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				onFrame(media.VideoSample{
					Width:  s.target.Width,
					Height: s.target.Height,
					PTS:    time.Since(startedAt).Seconds(),
					Data:   make([]byte, simFramePayload),
				}, telemetry.FrameComplete)
			}
		}
	}()

	if s.microphone {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			bufferDur := time.Duration(simAudioBufferSecs * float64(time.Second))
			ticker := time.NewTicker(bufferDur)
			defer ticker.Stop()

			var phase float64
			for {
				select {
				case <-s.stop:
					return
				case <-ticker.C:
					buf, next := sineBuffer(phase)
					phase = next
					buf.Time = time.Since(startedAt).Seconds()
					onAudio(buf)
				}
			}
		}()
	}

	return nil
}

func (s *simStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// sineBuffer synthesizes one mono PCM16 buffer of a 440Hz tone at moderate
// amplitude, continuing from the given phase.
func sineBuffer(phase float64) (media.AudioBuffer, float64) {
	samples := int(simAudioRate * simAudioBufferSecs)
	pcm := make([]int16, samples)
	step := 2 * math.Pi * 440 / simAudioRate

	for i := range pcm {
		pcm[i] = int16(0.2 * pcm16FullScale * math.Sin(phase))
		phase += step
	}

	return media.AudioBuffer{
		SampleRate: simAudioRate,
		Channels:   1,
		PCM:        pcm,
	}, math.Mod(phase, 2*math.Pi)
}
