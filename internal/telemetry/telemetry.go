// Package telemetry counts engine events. Counters are exported through the
// global OpenTelemetry meter and mirrored locally for the end-of-run report.
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/ivlev/sphereplay/internal/telemetry"

type Metrics struct {
	seeks       metric.Int64Counter
	activations metric.Int64Counter
	screenshots metric.Int64Counter
	loads       metric.Int64Counter

	seekCount       atomic.Int64
	activationCount atomic.Int64
	screenshotCount atomic.Int64
	loadCount       atomic.Int64
}

// New creates the counters on the global meter.
func New() (*Metrics, error) {
	return NewWithMeter(otel.Meter(instrumentationName))
}

func NewWithMeter(m metric.Meter) (*Metrics, error) {
	var (
		mt  Metrics
		err error
	)
	mt.seeks, err = m.Int64Counter(
		"playback.seeks",
		metric.WithDescription("Seeks issued to the main decoder"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating seeks counter: %w", err)
	}
	mt.activations, err = m.Int64Counter(
		"selection.activations",
		metric.WithDescription("Interaction points opened"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating activations counter: %w", err)
	}
	mt.screenshots, err = m.Int64Counter(
		"screenshot.captures",
		metric.WithDescription("Screenshot requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating screenshots counter: %w", err)
	}
	mt.loads, err = m.Int64Counter(
		"playback.loads",
		metric.WithDescription("Video loads by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating loads counter: %w", err)
	}
	return &mt, nil
}

// Nop returns counters backed by a no-op meter.
func Nop() *Metrics {
	m, _ := NewWithMeter(noop.Meter{})
	return m
}

func (m *Metrics) Seek() {
	m.seekCount.Add(1)
	m.seeks.Add(context.Background(), 1)
}

func (m *Metrics) Activation(modality string) {
	m.activationCount.Add(1)
	m.activations.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("modality", modality)))
}

func (m *Metrics) Screenshot(ok bool) {
	m.screenshotCount.Add(1)
	m.screenshots.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *Metrics) Load(ok bool) {
	m.loadCount.Add(1)
	m.loads.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("ok", ok)))
}

// Snapshot is a copy of the local counts.
type Snapshot struct {
	Seeks       int64
	Activations int64
	Screenshots int64
	Loads       int64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Seeks:       m.seekCount.Load(),
		Activations: m.activationCount.Load(),
		Screenshots: m.screenshotCount.Load(),
		Loads:       m.loadCount.Load(),
	}
}

func (s Snapshot) Log(log zerolog.Logger) {
	log.Info().
		Int64("seeks", s.Seeks).
		Int64("activations", s.Activations).
		Int64("screenshots", s.Screenshots).
		Int64("loads", s.Loads).
		Msg("engine counters")
}
