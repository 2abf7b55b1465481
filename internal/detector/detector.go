package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seawhisper/alert-monitor/internal/domain"
	"github.com/seawhisper/alert-monitor/internal/observability"
)

// Defaults applied when options are not given.
const (
	DefaultLookback  = 10 * time.Minute
	DefaultBatchSize = 200
)

// ReadingSource returns readings created at or after since, at most limit of
// them, in store-defined order.
type ReadingSource interface {
	RecentSince(ctx context.Context, since time.Time, limit int) ([]domain.Reading, error)
}

// AlertStore persists alerts. FindActive returns nil, nil when no active
// alert holds the key. Create returns domain.ErrDuplicateActive when the
// store's uniqueness guard rejects the insert.
type AlertStore interface {
	FindActive(ctx context.Context, p domain.Parameter, lat, lon float64) (*domain.Alert, error)
	Create(ctx context.Context, draft domain.AlertDraft) (domain.Alert, error)
	ListActive(ctx context.Context, limit int) ([]domain.Alert, error)
}

// AlertPublisher fans out newly created alerts.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert domain.Alert) error
}

// PassResult summarizes one detection pass.
type PassResult struct {
	Readings     int
	Evaluated    int
	Created      int
	Deduplicated int
	Failed       int
}

// Detector runs detection passes: fetch recent readings, classify each
// monitored parameter and create an active alert per new out-of-range key.
// It keeps no state between passes.
type Detector struct {
	source    ReadingSource
	store     AlertStore
	publisher AlertPublisher
	geocoder  domain.Geocoder
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	lookback  time.Duration
	batchSize int
	params    []domain.Parameter
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the time source for the lookback window.
func WithClock(c clockwork.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// WithLookback sets how far back each pass looks for readings.
func WithLookback(w time.Duration) Option {
	return func(d *Detector) { d.lookback = w }
}

// WithBatchSize caps the number of readings fetched per pass.
func WithBatchSize(n int) Option {
	return func(d *Detector) { d.batchSize = n }
}

// WithParameters sets the monitored parameters. Defaults to temperature only.
func WithParameters(params ...domain.Parameter) Option {
	return func(d *Detector) { d.params = params }
}

// WithPublisher sets where created alerts are fanned out.
func WithPublisher(p AlertPublisher) Option {
	return func(d *Detector) { d.publisher = p }
}

// WithGeocoder names alerts for readings without a location label.
func WithGeocoder(g domain.Geocoder) Option {
	return func(d *Detector) { d.geocoder = g }
}

// New creates a Detector over the given reading source and alert store.
func New(source ReadingSource, store AlertStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Detector {
	d := &Detector{
		source:    source,
		store:     store,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		lookback:  DefaultLookback,
		batchSize: DefaultBatchSize,
		params:    []domain.Parameter{domain.ParamTemperature},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunPass executes one detection pass. Only a reading source failure is
// returned, wrapped with domain.ErrReadSource; store failures for a single
// key are logged and counted and the pass moves on.
func (d *Detector) RunPass(ctx context.Context) (PassResult, error) {
	var res PassResult
	since := d.clock.Now().Add(-d.lookback)

	readings, err := d.source.RecentSince(ctx, since, d.batchSize)
	if err != nil {
		return res, fmt.Errorf("%w: %w", domain.ErrReadSource, err)
	}
	res.Readings = len(readings)
	d.metrics.ReadingsEvaluated.Add(float64(len(readings)))

	for _, r := range readings {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		for _, p := range d.params {
			value, ok := r.Value(p)
			if !ok {
				continue
			}
			res.Evaluated++

			sev, alert := domain.Classify(p, value)
			if !alert {
				continue
			}
			d.evaluate(ctx, r, p, value, sev, &res)
		}
	}

	d.logger.Debug("detection pass complete",
		"since", since,
		"readings", res.Readings,
		"created", res.Created,
		"deduplicated", res.Deduplicated,
		"failed", res.Failed,
	)
	return res, nil
}

// evaluate handles one out-of-range (reading, parameter) key.
func (d *Detector) evaluate(ctx context.Context, r domain.Reading, p domain.Parameter, value float64, sev domain.Severity, res *PassResult) {
	existing, err := d.store.FindActive(ctx, p, r.Lat, r.Lon)
	if err != nil {
		d.persistenceFailure(fmt.Errorf("%w: find active: %w", domain.ErrPersistence, err), "find", r, p, res)
		return
	}
	if existing != nil {
		d.deduplicated(p, res)
		return
	}

	draft := domain.DraftFor(r, p, value, sev, domain.LocationName(ctx, r, d.geocoder, d.logger))
	created, err := d.store.Create(ctx, draft)
	if errors.Is(err, domain.ErrDuplicateActive) {
		d.deduplicated(p, res)
		return
	}
	if err != nil {
		d.persistenceFailure(fmt.Errorf("%w: create: %w", domain.ErrPersistence, err), "create", r, p, res)
		return
	}

	res.Created++
	d.metrics.AlertsCreated.WithLabelValues(string(p), string(sev)).Inc()
	d.logger.Info("alert created",
		"alert_id", created.ID,
		"parameter", p,
		"severity", sev,
		"value", value,
		"location", created.Location.Name,
		"lat", r.Lat,
		"lon", r.Lon,
	)

	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishAlert(ctx, created); err != nil {
		d.metrics.PublishErrors.Inc()
		d.logger.Warn("publish alert failed", "alert_id", created.ID, "error", err)
	}
}

func (d *Detector) deduplicated(p domain.Parameter, res *PassResult) {
	res.Deduplicated++
	d.metrics.AlertsDeduplicated.WithLabelValues(string(p)).Inc()
}

func (d *Detector) persistenceFailure(err error, op string, r domain.Reading, p domain.Parameter, res *PassResult) {
	res.Failed++
	d.metrics.PersistenceErrors.WithLabelValues(op).Inc()
	d.logger.Warn("alert store failed, skipping key",
		"error", err,
		"parameter", p,
		"lat", r.Lat,
		"lon", r.Lon,
	)
}
