package fid

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// openConfig holds the resolved configuration for Open.
type openConfig struct {
	logger      *zap.Logger
	scale       *float64
	exchangeXY  *bool
	negateImag  *bool
	negatePairs *bool
	schedule    *SampleSchedule
}

// writeConfig holds the resolved configuration for NewWriter.
type writeConfig struct {
	logger     *zap.Logger
	scale      *float64
	copySeries bool
}

// Option configures Open or NewWriter.
// Options implement methods for the constructors they support.
// Using an option with an unsupported constructor returns an error.
type Option interface {
	applyOpen(*openConfig) error
	applyWrite(*writeConfig) error
}

// ErrOptionNotValidForOpen indicates an option was used with Open
// that only applies to NewWriter.
var ErrOptionNotValidForOpen = errors.New("option not valid for open")

// ErrOptionNotValidForWriter indicates an option was used with NewWriter
// that only applies to Open.
var ErrOptionNotValidForWriter = errors.New("option not valid for writer")

// loggerOption implements Option for WithLogger.
type loggerOption struct {
	logger *zap.Logger
}

// WithLogger routes warnings (missing parameters, unknown acquisition
// modes, short reads) to logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return &loggerOption{logger: l}
}

func (o *loggerOption) applyOpen(cfg *openConfig) error {
	cfg.logger = o.logger
	return nil
}

func (o *loggerOption) applyWrite(cfg *writeConfig) error {
	cfg.logger = o.logger
	return nil
}

// scaleOption implements Option for WithScale.
type scaleOption struct {
	scale float64
}

// WithScale sets the factor samples are divided by on read and multiplied
// by on write. Default: 1.
func WithScale(scale float64) Option {
	return &scaleOption{scale: scale}
}

func (o *scaleOption) applyOpen(cfg *openConfig) error {
	if o.scale == 0 {
		return errors.New("WithScale: scale must be non-zero")
	}
	cfg.scale = &o.scale
	return nil
}

func (o *scaleOption) applyWrite(cfg *writeConfig) error {
	if o.scale == 0 {
		return errors.New("WithScale: scale must be non-zero")
	}
	cfg.scale = &o.scale
	return nil
}

// flagOption implements Option for the read-only sign/axis toggles.
type flagOption struct {
	name  string
	value bool
	set   func(*openConfig, *bool)
}

func (o *flagOption) applyOpen(cfg *openConfig) error {
	v := o.value
	o.set(cfg, &v)
	return nil
}

func (o *flagOption) applyWrite(*writeConfig) error {
	return fmt.Errorf("%s: %w", o.name, ErrOptionNotValidForWriter)
}

// WithExchangeXY overrides the format default for swapping real and
// imaginary channels of direct-dimension reads.
func WithExchangeXY(on bool) Option {
	return &flagOption{name: "WithExchangeXY", value: on, set: func(c *openConfig, v *bool) { c.exchangeXY = v }}
}

// WithNegateImag overrides the format default for negating the imaginary
// channel of direct-dimension reads.
func WithNegateImag(on bool) Option {
	return &flagOption{name: "WithNegateImag", value: on, set: func(c *openConfig, v *bool) { c.negateImag = v }}
}

// WithNegatePairs overrides the format default for negating every odd
// point of direct-dimension reads.
func WithNegatePairs(on bool) Option {
	return &flagOption{name: "WithNegatePairs", value: on, set: func(c *openConfig, v *bool) { c.negatePairs = v }}
}

// scheduleOption implements Option for WithSchedule (open-only).
type scheduleOption struct {
	schedule *SampleSchedule
}

// WithSchedule attaches a non-uniform sampling schedule at open time.
// A schedule file found in the dataset directory is used otherwise.
func WithSchedule(s *SampleSchedule) Option {
	return &scheduleOption{schedule: s}
}

func (o *scheduleOption) applyOpen(cfg *openConfig) error {
	cfg.schedule = o.schedule
	return nil
}

func (o *scheduleOption) applyWrite(*writeConfig) error {
	return fmt.Errorf("WithSchedule: %w", ErrOptionNotValidForWriter)
}

// seriesOption implements Option for WithSeriesCopy (writer-only).
type seriesOption struct {
	enabled bool
}

// WithSeriesCopy controls whether the companion series document is copied
// next to written data. Default: true.
func WithSeriesCopy(enabled bool) Option {
	return &seriesOption{enabled: enabled}
}

func (o *seriesOption) applyOpen(*openConfig) error {
	return fmt.Errorf("WithSeriesCopy: %w", ErrOptionNotValidForOpen)
}

func (o *seriesOption) applyWrite(cfg *writeConfig) error {
	cfg.copySeries = o.enabled
	return nil
}

func resolveOpen(opts []Option) (*openConfig, error) {
	cfg := &openConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		if err := opt.applyOpen(cfg); err != nil {
			return nil, fmt.Errorf("fid: %w", err)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	return cfg, nil
}

func resolveWrite(opts []Option) (*writeConfig, error) {
	cfg := &writeConfig{logger: zap.NewNop(), copySeries: true}
	for _, opt := range opts {
		if err := opt.applyWrite(cfg); err != nil {
			return nil, fmt.Errorf("fid: %w", err)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	return cfg, nil
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func floatOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}
