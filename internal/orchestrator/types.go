package orchestrator

// #region imports
import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sapo-planner/nudge-controller/internal/geo"
	"github.com/sapo-planner/nudge-controller/internal/logging"
	"github.com/sapo-planner/nudge-controller/internal/metrics"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #endregion

// #region change

// Change names the watched input that changed. ChangeLabel is the owner's
// label-scan signal and always forces a full evaluation on the next pass.
type Change string

const (
	ChangeObjects        Change = "objects"
	ChangeShapes         Change = "shapes"
	ChangeInfrastructure Change = "infrastructure"
	ChangeLayers         Change = "layers"
	ChangeLabel          Change = "label"
)

// #endregion

// #region config

// Fixed timing windows.
const (
	DefaultDebounce        = 100 * time.Millisecond
	DefaultHighlightWindow = 1500 * time.Millisecond
	DefaultZoomDuration    = 600 * time.Millisecond
)

// Config holds orchestrator settings.
type Config struct {
	Enabled         bool
	Debounce        time.Duration
	HighlightWindow time.Duration
	ZoomDuration    time.Duration
}

// DefaultConfig returns the fixed windows with the kill switch read from
// the environment: NUDGES_ENABLED=false publishes empty lists and never
// evaluates.
func DefaultConfig() Config {
	enabled := true
	if v := os.Getenv("NUDGES_ENABLED"); v == "false" {
		enabled = false
	}
	return Config{
		Enabled:         enabled,
		Debounce:        DefaultDebounce,
		HighlightWindow: DefaultHighlightWindow,
		ZoomDuration:    DefaultZoomDuration,
	}
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.HighlightWindow <= 0 {
		c.HighlightWindow = DefaultHighlightWindow
	}
	if c.ZoomDuration <= 0 {
		c.ZoomDuration = DefaultZoomDuration
	}
	return c
}

// #endregion

// #region interfaces

// SceneSource yields the current scene. It is called once per pass, outside
// the orchestrator's lock; the returned snapshot is only read.
type SceneSource interface {
	Snapshot() *scene.Snapshot
}

// SourceFunc adapts a function to SceneSource.
type SourceFunc func() *scene.Snapshot

// Snapshot calls f.
func (f SourceFunc) Snapshot() *scene.Snapshot { return f() }

// Camera is the map's camera-pan primitive.
type Camera interface {
	EaseTo(center geo.LngLat, d time.Duration)
}

// Recorder receives the audit trail. Errors are logged and otherwise
// ignored.
type Recorder interface {
	RecordPass(entry logging.PassEntry) error
	RecordDismissal(entry logging.DismissalEntry) error
}

// #endregion

// #region options

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCamera sets the camera used by ZoomToSubject.
func WithCamera(c Camera) Option {
	return func(o *Orchestrator) { o.camera = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l.Named("orch")
		}
	}
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRecorder sets the audit recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.sessionID = id
		}
	}
}

// #endregion
