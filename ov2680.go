// Package ov2680 controls an OmniVision OV2680 image sensor over a
// register bus: it applies register programs, switches between the fixed
// resolution modes and writes exposure, gain and streaming state.
package ov2680

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// State is the streaming state of the sensor.
type State int

const (
	Sleeping State = iota
	Configured
	Streaming
)

func (s State) String() string {
	switch s {
	case Sleeping:
		return "sleeping"
	case Configured:
		return "configured"
	case Streaming:
		return "streaming"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Format is the media bus format currently produced.
type Format struct {
	Width  int
	Height int
	Code   PixelCode
}

// ActiveMode is returned by Configure. SkipFrames frames have to be
// dropped by the consumer after a mode switch before output is valid.
type ActiveMode struct {
	Index      int
	Mode       ResolutionMode
	Format     Format
	SkipFrames uint32
}

type deviceState struct {
	state      State
	modeIdx    int
	mode       ResolutionMode
	pixClkHz   int
	format     Format
	skipFrames uint32

	exposure    Exposure
	exposureSet bool
	gain        Gain
	gainSet     bool
	wb          WhiteBalance
	flip        bool
	mirror      bool
}

// OV2680 is one physical sensor. All methods are safe for concurrent use;
// each holds the device lock for its whole register sequence.
type OV2680 struct {
	transport Transport
	catalogue *Catalogue
	batch     *batcher
	interp    *interpreter
	logger    *slog.Logger
	metrics   *Metrics
	id        uuid.UUID

	stopBeforeSwitch bool
	revision         uint8

	mu sync.Mutex
	st deviceState
}

type options struct {
	logger           *slog.Logger
	metrics          *Metrics
	catalogue        *Catalogue
	sleeper          Sleeper
	retries          int
	stopBeforeSwitch bool
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCatalogue selects the mode catalogue. The device keeps its own copy.
func WithCatalogue(c *Catalogue) Option {
	return func(o *options) { o.catalogue = c }
}

func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithRetries sets how often a failed burst is retried, default I2CRetryCount.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithStopBeforeModeSwitch makes Configure stop a running stream instead of
// rejecting the mode switch.
func WithStopBeforeModeSwitch(stop bool) Option {
	return func(o *options) { o.stopBeforeSwitch = stop }
}

// New wraps a transport without touching the bus. Call Identify and Init
// before configuring a mode.
func New(t Transport, opts ...Option) (*OV2680, error) {
	o := options{
		logger:  slog.Default(),
		sleeper: realSleeper,
		retries: I2CRetryCount,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.catalogue == nil {
		c, err := LoadCatalogue("preview")
		if err != nil {
			return nil, err
		}
		o.catalogue = c
	} else {
		o.catalogue = o.catalogue.Clone()
	}

	id := uuid.New()
	logger := o.logger.With("sensor", "ov2680", "instance", id.String())
	batch := newBatcher(t, o.retries, logger, o.metrics)

	return &OV2680{
		transport:        t,
		catalogue:        o.catalogue,
		batch:            batch,
		interp:           &interpreter{batch: batch, sleep: o.sleeper, logger: logger},
		logger:           logger,
		metrics:          o.metrics,
		id:               id,
		stopBeforeSwitch: o.stopBeforeSwitch,
		st:               deviceState{modeIdx: -1},
	}, nil
}

// Open creates the transport described by cfg and probes the sensor.
func Open(cfg Config, opts ...Option) (*OV2680, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to open OV2680: %w", err)
	}
	t, err := openTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open OV2680: %w", err)
	}

	catalogue, err := LoadCatalogue(cfg.Catalogue)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to open OV2680: %w", err)
	}

	base := []Option{
		WithLogger(cfg.Logger()),
		WithCatalogue(catalogue),
		WithRetries(cfg.Retries),
		WithStopBeforeModeSwitch(cfg.StopBeforeModeSwitch),
	}
	sensor, err := New(t, append(base, opts...)...)
	if err != nil {
		t.Close()
		return nil, err
	}

	if _, err := sensor.Identify(); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to open OV2680: %w", err)
	}
	return sensor, nil
}

// ID is a per-instance identifier used in log records.
func (s *OV2680) ID() string {
	return s.id.String()
}

// Identify reads the chip ID registers and checks them against 0x2680.
func (s *OV2680) Identify() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.readRegister(CHIP_ID)
	if err != nil {
		return 0, fmt.Errorf("failed to read chip id: %w", err)
	}
	if id != ChipID {
		return uint16(id), fmt.Errorf("%w: 0x%04X, want 0x%04X", ErrChipMismatch, id, ChipID)
	}

	rev, err := s.readRegister(SUB_ID)
	if err != nil {
		return uint16(id), fmt.Errorf("failed to read sub id: %w", err)
	}
	s.revision = uint8(rev)

	s.logger.Info("sensor identified", "chip_id", hex16(uint16(id)), "revision", s.revision)
	return uint16(id), nil
}

// Revision is the process/version byte read by Identify.
func (s *OV2680) Revision() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Init moves the sensor from Sleeping to Configured: software reset, then
// the global setting program.
func (s *OV2680) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.state == Streaming {
		return &StateError{Op: "initialize", State: s.st.state}
	}

	if err := s.writeRegister(SW_RESET, SoftReset); err != nil {
		return fmt.Errorf("failed to reset sensor: %w", err)
	}
	s.resetState()

	if err := s.interp.Apply(GlobalSetting()); err != nil {
		return fmt.Errorf("failed to apply global setting: %w", err)
	}
	s.st.state = Configured
	s.logger.Info("sensor initialized")
	return nil
}

// Reset issues a software reset and returns to Sleeping.
func (s *OV2680) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeRegister(SW_RESET, SoftReset); err != nil {
		return fmt.Errorf("failed to reset sensor: %w", err)
	}
	s.resetState()
	s.logger.Info("sensor reset")
	return nil
}

func (s *OV2680) resetState() {
	s.st = deviceState{modeIdx: -1}
	s.catalogue.markUsed(-1)
	s.metrics.setStreaming(false)
}

// Configure switches to the catalogue mode that best covers width x height.
// Only raw 10 bit Bayer output exists, any other code is replaced by
// SBGGR10_1X10 in the returned format.
func (s *OV2680) Configure(width, height int, code PixelCode) (ActiveMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width <= 0 {
		return ActiveMode{}, &RangeError{Control: "width", Value: width}
	}
	if height <= 0 {
		return ActiveMode{}, &RangeError{Control: "height", Value: height}
	}
	if s.st.state == Sleeping {
		return ActiveMode{}, &StateError{Op: "configure", State: s.st.state}
	}

	idx, mode, err := s.catalogue.Select(width, height)
	if err != nil {
		return ActiveMode{}, err
	}
	if code != MEDIA_BUS_FMT_SBGGR10_1X10 {
		s.logger.Debug("pixel code coerced", "requested", code, "code", MEDIA_BUS_FMT_SBGGR10_1X10)
		code = MEDIA_BUS_FMT_SBGGR10_1X10
	}
	format := Format{Width: mode.Width, Height: mode.Height, Code: code}

	if idx == s.st.modeIdx {
		s.st.format = format
		s.st.skipFrames = 0
		return ActiveMode{Index: idx, Mode: s.catalogue.Mode(idx), Format: format}, nil
	}

	if s.st.state == Streaming {
		if !s.stopBeforeSwitch {
			return ActiveMode{}, &StateError{Op: "switch mode", State: s.st.state}
		}
		if err := s.stopStreaming(); err != nil {
			return ActiveMode{}, err
		}
	}

	if err := s.interp.Apply(mode.Program); err != nil {
		// Part of the program may be on the sensor, the next Configure
		// has to apply a full program whatever mode it selects.
		s.st.modeIdx = -1
		s.st.mode = ResolutionMode{}
		s.st.pixClkHz = 0
		s.st.skipFrames = 0
		s.catalogue.markUsed(-1)
		return ActiveMode{}, fmt.Errorf("failed to apply mode %s: %w", mode.Desc, err)
	}

	s.catalogue.markUsed(idx)
	s.st.modeIdx = idx
	s.st.mode = s.catalogue.Mode(idx)
	s.st.pixClkHz = mode.PixClkMHz * 1000000
	s.st.format = format
	s.st.skipFrames = mode.SkipFrames
	s.metrics.modeSwitch(mode.Desc)
	s.logger.Info("mode switched", "mode", mode.Desc, "width", mode.Width, "height", mode.Height,
		"hts", mode.PixelsPerLine, "vts", mode.LinesPerFrame, "skip_frames", mode.SkipFrames)

	// The mode program resets the integration time, restore the caller's
	// values clamped against the new frame length.
	if s.st.exposureSet {
		exp, err := s.writeExposure(s.st.exposure.Requested)
		if err != nil {
			return ActiveMode{}, fmt.Errorf("failed to restore exposure: %w", err)
		}
		s.st.exposure = exp
	}
	if s.st.gainSet {
		gain, err := s.writeGain(s.st.gain.Requested)
		if err != nil {
			return ActiveMode{}, fmt.Errorf("failed to restore gain: %w", err)
		}
		s.st.gain = gain
	}
	if s.st.flip {
		if err := s.setFlipMirror("flip", FLIP_REG, true); err != nil {
			return ActiveMode{}, err
		}
	}
	if s.st.mirror {
		if err := s.setFlipMirror("mirror", MIRROR_REG, true); err != nil {
			return ActiveMode{}, err
		}
	}

	return ActiveMode{Index: idx, Mode: s.st.mode, Format: format, SkipFrames: mode.SkipFrames}, nil
}

// SkipFramesRequired is the number of frames to discard after the last
// Configure call before output is valid.
func (s *OV2680) SkipFramesRequired() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.skipFrames
}

// StartStreaming enables the output. Calling it while already streaming
// does nothing.
func (s *OV2680) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.st.state == Streaming:
		return nil
	case s.st.state == Sleeping:
		return &StateError{Op: "start streaming", State: s.st.state}
	case s.st.modeIdx < 0:
		return &StateError{Op: "start streaming without a mode", State: s.st.state}
	}

	if err := s.writeRegister(SW_STREAM, StartStreaming); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	s.st.state = Streaming
	s.metrics.setStreaming(true)
	s.logger.Info("streaming started", "mode", s.st.mode.Desc)
	return nil
}

// StopStreaming disables the output. It does nothing when not streaming.
func (s *OV2680) StopStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.state != Streaming {
		return nil
	}
	return s.stopStreaming()
}

func (s *OV2680) stopStreaming() error {
	if err := s.writeRegister(SW_STREAM, StopStreaming); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	s.st.state = Configured
	s.metrics.setStreaming(false)
	s.logger.Info("streaming stopped")
	return nil
}

// Close stops a running stream and releases the transport.
func (s *OV2680) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.state == Streaming {
		if err := s.stopStreaming(); err != nil {
			s.logger.Warn("failed to stop stream on close", "err", err)
		}
	}
	return s.transport.Close()
}

// Status is a snapshot of the device state.
type Status struct {
	State        State
	Mode         *ResolutionMode
	PixelClockHz int
	Format       Format
	SkipFrames   uint32
	Exposure     Exposure
	Gain         Gain
	WhiteBalance WhiteBalance
	Flip         bool
	Mirror       bool
}

func (s *OV2680) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:        s.st.state,
		PixelClockHz: s.st.pixClkHz,
		Format:       s.st.format,
		SkipFrames:   s.st.skipFrames,
		Exposure:     s.st.exposure,
		Gain:         s.st.gain,
		WhiteBalance: s.st.wb,
		Flip:         s.st.flip,
		Mirror:       s.st.mirror,
	}
	if s.st.modeIdx >= 0 {
		mode := s.st.mode
		st.Mode = &mode
	}
	return st
}

// Catalogue returns a snapshot of the device's modes including Used flags.
func (s *OV2680) Catalogue() []ResolutionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalogue.Modes()
}

func (s *OV2680) writeRegister(reg register, value uint32) error {
	if reg.ReadOnly {
		return fmt.Errorf("register 0x%04X is read-only", reg.Address)
	}

	var op RegisterOp
	switch reg.Length {
	case 1:
		op = RegisterOp{Kind: Width8, Reg: reg.Address, Val: value}
	case 2:
		op = RegisterOp{Kind: Width16, Reg: reg.Address, Val: value}
	default:
		op = RegisterOp{Kind: Width32, Reg: reg.Address, Val: value}
	}
	return s.interp.Apply(Program{op, Term()})
}

func (s *OV2680) readRegister(reg register) (uint32, error) {
	v, err := s.transport.Read(reg.Address, reg.Length)
	if err != nil {
		return 0, fmt.Errorf("failed to read register 0x%04X: %w", reg.Address, err)
	}
	return v, nil
}

func hex16(v uint16) string {
	return fmt.Sprintf("0x%04X", v)
}
