package detector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/seawhisper/alert-monitor/internal/adapter/memory"
	"github.com/seawhisper/alert-monitor/internal/domain"
	"github.com/seawhisper/alert-monitor/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockSource struct {
	readings []domain.Reading
	err      error
	since    time.Time
	limit    int
}

func (m *mockSource) RecentSince(_ context.Context, since time.Time, limit int) ([]domain.Reading, error) {
	m.since = since
	m.limit = limit
	return m.readings, m.err
}

// flakyStore wraps a real store and fails selected keys.
type flakyStore struct {
	*memory.Store
	failFindAt   map[float64]bool // by lat
	failCreateAt map[float64]bool
	createErr    error
}

func (f *flakyStore) FindActive(ctx context.Context, p domain.Parameter, lat, lon float64) (*domain.Alert, error) {
	if f.failFindAt[lat] {
		return nil, errors.New("connection reset")
	}
	return f.Store.FindActive(ctx, p, lat, lon)
}

func (f *flakyStore) Create(ctx context.Context, d domain.AlertDraft) (domain.Alert, error) {
	if f.failCreateAt[d.Location.Lat] {
		return domain.Alert{}, f.createErr
	}
	return f.Store.Create(ctx, d)
}

type mockPublisher struct {
	published []domain.Alert
	err       error
}

func (m *mockPublisher) PublishAlert(_ context.Context, a domain.Alert) error {
	m.published = append(m.published, a)
	return m.err
}

type mockGeocoder struct {
	name  string
	calls int
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.calls++
	return domain.GeocodingResult{PlaceName: m.name}, nil
}

// --- Helpers ---

func newTestDetector(t *testing.T, source ReadingSource, store AlertStore, opts ...Option) (*Detector, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(source, store, logger, m, opts...), m
}

func reading(loc string, lat, lon, temp float64) domain.Reading {
	return domain.Reading{Location: loc, Lat: lat, Lon: lon, Temperature: temp}
}

func ptr(v float64) *float64 { return &v }

// --- Tests ---

func TestRunPass_WarningAlertEndToEnd(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{reading("Bay of Bengal", 14.5, 82.1, 31.5)}}
	d, m := newTestDetector(t, src, store)

	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PassResult{Readings: 1, Evaluated: 1, Created: 1}, res)

	active, err := store.ListActive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	a := active[0]
	assert.Equal(t, domain.ParamTemperature, a.Parameter)
	assert.Equal(t, 31.5, a.Value)
	assert.Equal(t, "> 30°C", a.Threshold)
	assert.Equal(t, domain.SeverityWarning, a.Severity)
	assert.Equal(t, domain.AlertLocation{Name: "Bay of Bengal", Lat: 14.5, Lon: 82.1}, a.Location)
	assert.Equal(t, domain.StatusActive, a.Status)
	assert.Equal(t, "Temperature near heat stress threshold", a.Message)
	assert.NotEmpty(t, a.ID)

	assert.InDelta(t, 1, testutil.ToFloat64(m.AlertsCreated.WithLabelValues("temperature", "warning")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReadingsEvaluated), 0)
}

func TestRunPass_CriticalAlertMessage(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{reading("Reef", 10, 20, 33)}}
	d, _ := newTestDetector(t, src, store)

	_, err := d.RunPass(context.Background())
	require.NoError(t, err)

	active, err := store.ListActive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.SeverityCritical, active[0].Severity)
	assert.Equal(t, "Critical heat stress detected", active[0].Message)
	assert.Equal(t, "> 30°C", active[0].Threshold)
}

func TestRunPass_InRangeAndBoundaryReadingsCreateNothing(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{
		reading("a", 1, 1, 25),
		reading("b", 2, 2, 30), // boundary is exclusive
	}}
	d, _ := newTestDetector(t, src, store)

	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Evaluated)

	active, err := store.ListActive(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRunPass_DeduplicatesSameKeyWithinPass(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{
		reading("Bay of Bengal", 14.5, 82.1, 31.5),
		reading("Bay of Bengal", 14.5, 82.1, 33),
	}}
	d, m := newTestDetector(t, src, store)

	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Deduplicated)

	active, err := store.ListActive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 31.5, active[0].Value, "first crossing wins; existing alert is not updated")
	assert.InDelta(t, 1, testutil.ToFloat64(m.AlertsDeduplicated.WithLabelValues("temperature")), 0)
}

func TestRunPass_IdempotentAcrossPasses(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{
		reading("a", 1, 1, 31),
		reading("b", 2, 2, 35),
	}}
	d, _ := newTestDetector(t, src, store)

	first, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Deduplicated)

	active, err := store.ListActive(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRunPass_ResolvedAlertAllowsNewOne(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{reading("a", 1, 1, 31)}}
	d, _ := newTestDetector(t, src, store)

	_, err := d.RunPass(context.Background())
	require.NoError(t, err)
	active, err := store.ListActive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	_, err = store.Resolve(context.Background(), active[0].ID)
	require.NoError(t, err)

	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestRunPass_ReadSourceErrorAbortsPass(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{err: errors.New("db down")}
	d, _ := newTestDetector(t, src, store)

	_, err := d.RunPass(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReadSource)
	assert.Contains(t, err.Error(), "db down")
}

func TestRunPass_PersistenceFailureIsolatedPerKey(t *testing.T) {
	store := &flakyStore{
		Store:        memory.NewStore(),
		failFindAt:   map[float64]bool{1: true},
		failCreateAt: map[float64]bool{2: true},
		createErr:    errors.New("disk full"),
	}
	src := &mockSource{readings: []domain.Reading{
		reading("find-fails", 1, 1, 31),
		reading("create-fails", 2, 2, 31),
		reading("ok", 3, 3, 31),
	}}
	d, m := newTestDetector(t, src, store)

	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Created)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PersistenceErrors.WithLabelValues("find")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PersistenceErrors.WithLabelValues("create")), 0)

	active, err := store.ListActive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ok", active[0].Location.Name)
}

func TestRunPass_DuplicateRejectionCountsAsDeduplicated(t *testing.T) {
	store := &flakyStore{
		Store:        memory.NewStore(),
		failCreateAt: map[float64]bool{5: true},
		createErr:    domain.ErrDuplicateActive,
	}
	src := &mockSource{readings: []domain.Reading{reading("race", 5, 5, 31)}}
	d, _ := newTestDetector(t, src, store)

	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PassResult{Readings: 1, Evaluated: 1, Deduplicated: 1}, res)
}

func TestRunPass_PublishesCreatedAlerts(t *testing.T) {
	store := memory.NewStore()
	pub := &mockPublisher{}
	src := &mockSource{readings: []domain.Reading{
		reading("a", 1, 1, 31),
		reading("a", 1, 1, 31),
	}}
	d, _ := newTestDetector(t, src, store, WithPublisher(pub))

	_, err := d.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, 31.0, pub.published[0].Value)
}

func TestRunPass_PublishErrorDoesNotFailPass(t *testing.T) {
	store := memory.NewStore()
	pub := &mockPublisher{err: errors.New("broker unavailable")}
	src := &mockSource{readings: []domain.Reading{reading("a", 1, 1, 31)}}
	d, m := newTestDetector(t, src, store, WithPublisher(pub))

	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PublishErrors), 0)
}

func TestRunPass_MonitoredParameters(t *testing.T) {
	r := reading("estuary", 7, 7, 25)
	r.PH = ptr(7.5)
	r.Oxygen = ptr(1.8)

	t.Run("temperature only by default", func(t *testing.T) {
		store := memory.NewStore()
		d, _ := newTestDetector(t, &mockSource{readings: []domain.Reading{r}}, store)
		res, err := d.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Created)
	})

	t.Run("sensor parameters when enabled", func(t *testing.T) {
		store := memory.NewStore()
		d, _ := newTestDetector(t, &mockSource{readings: []domain.Reading{r}}, store,
			WithParameters(domain.ParamTemperature, domain.ParamPH, domain.ParamOxygen, domain.ParamSalinity))
		res, err := d.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, res.Evaluated, "salinity is absent from the reading")
		assert.Equal(t, 2, res.Created)

		ph, err := store.FindActive(context.Background(), domain.ParamPH, 7, 7)
		require.NoError(t, err)
		require.NotNil(t, ph)
		assert.Equal(t, domain.SeverityCritical, ph.Severity)

		ox, err := store.FindActive(context.Background(), domain.ParamOxygen, 7, 7)
		require.NoError(t, err)
		require.NotNil(t, ox)
		assert.Equal(t, domain.SeverityWarning, ox.Severity)
	})
}

func TestRunPass_LookbackWindowAndBatchSize(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	src := &mockSource{}
	d, _ := newTestDetector(t, src, memory.NewStore(),
		WithClock(fc), WithLookback(15*time.Minute), WithBatchSize(50))

	_, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fc.Now().Add(-15*time.Minute), src.since)
	assert.Equal(t, 50, src.limit)
}

func TestRunPass_DefaultWindowExcludesOldReadings(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })

	store := memory.NewStore()
	require.NoError(t, store.InsertReadings(context.Background(), []domain.Reading{reading("stale", 1, 1, 35)}))
	fc.Advance(11 * time.Minute)
	require.NoError(t, store.InsertReadings(context.Background(), []domain.Reading{reading("fresh", 2, 2, 31)}))

	d, _ := newTestDetector(t, store, store, WithClock(fc))
	res, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Readings)
	assert.Equal(t, 1, res.Created)

	found, err := store.FindActive(context.Background(), domain.ParamTemperature, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRunPass_GeocodesUnlabeledReadings(t *testing.T) {
	store := memory.NewStore()
	geo := &mockGeocoder{name: "Chennai, Tamil Nadu, India"}
	src := &mockSource{readings: []domain.Reading{
		reading("", 13.1, 80.3, 31),
		reading("Labeled", 14, 81, 31),
	}}
	d, _ := newTestDetector(t, src, store, WithGeocoder(geo))

	_, err := d.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)

	a, err := store.FindActive(context.Background(), domain.ParamTemperature, 13.1, 80.3)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Chennai, Tamil Nadu, India", a.Location.Name)
}

func TestRunPass_UnlabeledReadingUsesDefaultName(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{reading("  ", 9, 9, 31)}}
	d, _ := newTestDetector(t, src, store)

	_, err := d.RunPass(context.Background())
	require.NoError(t, err)
	a, err := store.FindActive(context.Background(), domain.ParamTemperature, 9, 9)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, domain.DefaultLocationName, a.Location.Name)
}

func TestRunPass_CanceledContextStops(t *testing.T) {
	store := memory.NewStore()
	src := &mockSource{readings: []domain.Reading{reading("a", 1, 1, 31)}}
	d, _ := newTestDetector(t, src, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.RunPass(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
