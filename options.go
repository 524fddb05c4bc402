package plmxml

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DuplicatePolicy decides what happens when an identifier is seen twice
// within the same record table.
type DuplicatePolicy int

const (
	// DuplicateLastWins keeps the later record and reports a warning
	DuplicateLastWins DuplicatePolicy = iota
	// DuplicateReject fails the whole parse with ErrDuplicateID
	DuplicateReject
)

// PathResolver computes the absolute location of an ExternalFile from the
// document base and the file's locationRef.
type PathResolver func(base, location string) (string, error)

// FileResolver joins location to base on the local filesystem and makes the
// result absolute.
func FileResolver(base, location string) (string, error) {
	if strings.ContainsRune(location, 0) {
		return "", fmt.Errorf("invalid location %q", location)
	}
	return filepath.Abs(filepath.Join(base, filepath.FromSlash(location)))
}

// Recorder receives parse measurements. See package metrics for a
// Prometheus implementation.
type Recorder interface {
	ObserveElement(local string)
	ObserveDiagnostic(code string)
	ObserveParse(outcome string, elapsed time.Duration, occurrences int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveElement(string)                   {}
func (nopRecorder) ObserveDiagnostic(string)                {}
func (nopRecorder) ObserveParse(string, time.Duration, int) {}

// Option configures a parse
type Option func(*config)

type config struct {
	logger     *zap.Logger
	recorder   Recorder
	baseDir    string
	fileName   string
	resolver   PathResolver
	duplicates DuplicatePolicy
	headerOnly bool
}

func newConfig(opts []Option) *config {
	cfg := &config{
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		resolver: FileResolver,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger sets the logger diagnostics are written to
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(rec Recorder) Option {
	return func(c *config) {
		if rec != nil {
			c.recorder = rec
		}
	}
}

// WithBaseDir sets the base location ExternalFile paths are resolved against
func WithBaseDir(dir string) Option {
	return func(c *config) { c.baseDir = dir }
}

// WithFileName sets the file name reported in diagnostic positions
func WithFileName(name string) Option {
	return func(c *config) { c.fileName = name }
}

// WithPathResolver replaces FileResolver
func WithPathResolver(r PathResolver) Option {
	return func(c *config) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithDuplicatePolicy sets how duplicate identifiers are handled
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(c *config) { c.duplicates = p }
}
