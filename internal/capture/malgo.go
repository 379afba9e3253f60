package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/interviewly/voicekit/internal/shared"
)

const (
	sampleRate      = 48000
	channels        = 1
	defaultSlice    = 250 * time.Millisecond
	pcmMimeType     = "audio/pcm;rate=48000;bits=16"
	pcmMimeTypeBare = "audio/pcm"
)

// MalgoOpener acquires the default system microphone through miniaudio.
type MalgoOpener struct {
	log *slog.Logger
}

func NewMalgoOpener(log *slog.Logger) *MalgoOpener {
	if log == nil {
		log = slog.Default()
	}
	return &MalgoOpener{log: log.With("component", "capture")}
}

func (o *MalgoOpener) Open(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		o.log.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", shared.ErrDeviceUnavailable, err)
	}

	return &malgoDevice{
		audioCtx: audioCtx,
		log:      o.log,
	}, nil
}

// malgoDevice buffers raw S16 mono PCM from the capture callback and flushes
// one chunk per timeslice.
type malgoDevice struct {
	audioCtx *malgo.AllocatedContext
	log      *slog.Logger

	mu      sync.Mutex
	dev     *malgo.Device
	buf     []byte
	stopped bool
	closed  bool
	flushCh chan struct{}
}

func (d *malgoDevice) Supports(mimeType string) bool {
	return mimeType == pcmMimeType || mimeType == pcmMimeTypeBare
}

func (d *malgoDevice) Start(opts StartOptions, emit func(Chunk)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return shared.ErrDeviceUnavailable
	}
	if d.dev != nil {
		return fmt.Errorf("capture already started")
	}

	timeslice := opts.Timeslice
	if timeslice <= 0 {
		timeslice = defaultSlice
	}
	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = pcmMimeType
	}
	if !d.Supports(mimeType) {
		return fmt.Errorf("unsupported mime type %q", mimeType)
	}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = sampleRate
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = 480

	dev, err := malgo.InitDevice(d.audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			d.mu.Lock()
			if !d.stopped {
				d.buf = append(d.buf, pInput[:n]...)
			}
			d.mu.Unlock()
		},
	})
	if err != nil {
		return fmt.Errorf("%w: init capture device: %v", shared.ErrDeviceUnavailable, err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("%w: start capture: %v", shared.ErrDeviceUnavailable, err)
	}

	d.dev = dev
	d.flushCh = make(chan struct{})
	go d.flushLoop(timeslice, mimeType, emit, d.flushCh)
	return nil
}

func (d *malgoDevice) flushLoop(timeslice time.Duration, mimeType string, emit func(Chunk), done chan struct{}) {
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.mu.Lock()
			data := d.buf
			d.buf = nil
			d.mu.Unlock()
			if len(data) > 0 {
				emit(Chunk{Data: data, MimeType: mimeType})
			}
		}
	}
}

func (d *malgoDevice) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	dev := d.dev
	d.dev = nil
	flushCh := d.flushCh
	d.flushCh = nil
	d.buf = nil
	d.mu.Unlock()

	if flushCh != nil {
		close(flushCh)
	}
	if dev != nil {
		if err := dev.Stop(); err != nil {
			return fmt.Errorf("stop capture device: %w", err)
		}
		dev.Uninit()
	}
	return nil
}

func (d *malgoDevice) Close() error {
	if err := d.Stop(); err != nil {
		d.log.Warn("capture stop during close failed", "error", err)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	audioCtx := d.audioCtx
	d.audioCtx = nil
	d.mu.Unlock()

	if audioCtx != nil {
		if err := audioCtx.Uninit(); err != nil {
			return fmt.Errorf("release audio context: %w", err)
		}
		audioCtx.Free()
	}
	return nil
}
