package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryboy-agent/internal/geo"
)

// manualProvider lets tests drive the watch callbacks by hand
type manualProvider struct {
	mu         sync.Mutex
	current    geo.PositionSample
	currentErr error
	onSample   geo.SampleFunc
	onError    geo.ErrorFunc
	watchCount int
	cancelled  int
}

func (p *manualProvider) CurrentPosition(ctx context.Context, opts geo.Options) (geo.PositionSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentErr != nil {
		return geo.PositionSample{}, p.currentErr
	}
	return p.current, nil
}

func (p *manualProvider) WatchPosition(opts geo.Options, onSample geo.SampleFunc, onError geo.ErrorFunc) (geo.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSample = onSample
	p.onError = onError
	p.watchCount++
	return &manualSubscription{provider: p}, nil
}

func (p *manualProvider) emit(s geo.PositionSample) {
	p.mu.Lock()
	fn := p.onSample
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *manualProvider) emitError(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

type manualSubscription struct {
	provider *manualProvider
	once     sync.Once
}

func (s *manualSubscription) Cancel() {
	s.once.Do(func() {
		s.provider.mu.Lock()
		s.provider.cancelled++
		s.provider.mu.Unlock()
	})
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls []geo.PositionSample
	err   error
}

func (f *fakeSyncer) SyncPosition(ctx context.Context, s geo.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	provider *manualProvider
	syncer   *fakeSyncer
	tracker  *Tracker
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := &manualProvider{
		current: geo.PositionSample{Latitude: 12.9716, Longitude: 77.5946, Accuracy: 10},
	}
	gate := geo.NewPermissionGate(provider)
	sampler := geo.NewSampler(provider, gate, geo.DefaultSamplerConfig())
	syncer := &fakeSyncer{}

	trk := New(sampler, syncer, DefaultConfig())
	clock := time.Unix(1_700_000_000, 0)
	trk.now = func() time.Time { return clock }

	f := &fixture{provider: provider, syncer: syncer, tracker: trk, clock: &clock}

	// Gate → tracker wiring, as the agent does it
	gate.OnChange(func(s geo.PermissionState) {
		if s == geo.PermissionDenied {
			trk.PermissionRevoked()
		}
	})
	return f
}

func (f *fixture) at(lat, lng float64) geo.PositionSample {
	return geo.PositionSample{Latitude: lat, Longitude: lng, Accuracy: 10, CapturedAt: *f.clock}
}

func (f *fixture) waitSyncs(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.syncer.count() == n },
		2*time.Second, 5*time.Millisecond, "expected %d syncs, have %d", n, f.syncer.count())
}

func TestHaversineSymmetricAndZero(t *testing.T) {
	assert.Zero(t, HaversineMeters(12.9716, 77.5946, 12.9716, 77.5946))

	ab := HaversineMeters(12.9716, 77.5946, 12.9762, 77.6033)
	ba := HaversineMeters(12.9762, 77.6033, 12.9716, 77.5946)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestHaversineThresholds(t *testing.T) {
	// 0.00045 degrees of latitude is just over 50 meters
	d := HaversineMeters(12.9716, 77.5946, 12.9716+0.00045, 77.5946)
	assert.Greater(t, d, 50.0)
	assert.Less(t, d, 51.0)

	// 0.0002 degrees is about 22 meters - below the sync threshold
	d = HaversineMeters(12.9716, 77.5946, 12.9716+0.0002, 77.5946)
	assert.Greater(t, d, 21.0)
	assert.Less(t, d, 23.0)
}

func TestStartEntersActiveAndSyncsFirstSample(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.tracker.Start(context.Background()))
	assert.Equal(t, StateActive, f.tracker.State())

	// First sample has no prior sync - always pushed
	f.waitSyncs(t, 1)

	snap := f.tracker.Snapshot()
	require.NotNil(t, snap.LastSyncAt)
	require.NotNil(t, snap.LastSample)
}

func TestStartIsNoOpWhileRunning(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.tracker.Start(context.Background()))
	require.NoError(t, f.tracker.Start(context.Background()))

	f.provider.mu.Lock()
	watches := f.provider.watchCount
	f.provider.mu.Unlock()
	assert.Equal(t, 1, watches, "second Start must not spawn a second watch")
}

func TestStartFailureRemainsIdle(t *testing.T) {
	f := newFixture(t)
	f.provider.mu.Lock()
	f.provider.currentErr = geo.ErrPositionUnavailable
	f.provider.mu.Unlock()

	err := f.tracker.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, f.tracker.State())
	assert.NotEmpty(t, f.tracker.Snapshot().LastError)
}

func TestSyncPolicyDistanceTrigger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))
	f.waitSyncs(t, 1)

	// ~50m north: distance trigger fires
	f.provider.emit(f.at(12.9716+0.00045, 77.5946))
	f.waitSyncs(t, 2)

	// ~22m further within the time window: no sync
	before := *f.tracker.Snapshot().LastSyncAt
	f.provider.emit(f.at(12.9716+0.00045+0.0002, 77.5946))
	assert.Equal(t, before, *f.tracker.Snapshot().LastSyncAt)
	assert.Equal(t, 2, f.syncer.count())
}

func TestSyncPolicyTimeTrigger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))
	f.waitSyncs(t, 1)

	// Same spot, 31 seconds later: time trigger fires
	*f.clock = f.clock.Add(31 * time.Second)
	f.provider.emit(f.at(12.9716, 77.5946))
	f.waitSyncs(t, 2)
}

func TestSyncPolicyNoTriggerWithinWindow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))
	f.waitSyncs(t, 1)

	*f.clock = f.clock.Add(10 * time.Second)
	f.provider.emit(f.at(12.9716+0.0001, 77.5946))
	f.provider.emit(f.at(12.9716+0.0002, 77.5946))

	assert.Equal(t, 1, f.syncer.count())
}

func TestSyncFailureDoesNotStopTracking(t *testing.T) {
	f := newFixture(t)
	f.syncer.err = assert.AnError

	require.NoError(t, f.tracker.Start(context.Background()))
	f.waitSyncs(t, 1)

	assert.Equal(t, StateActive, f.tracker.State())

	// Next qualifying sample still attempts a sync
	*f.clock = f.clock.Add(31 * time.Second)
	f.provider.emit(f.at(12.9716, 77.5946))
	f.waitSyncs(t, 2)
}

func TestHistoryIsBoundedNewestFirst(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))

	for i := 0; i < 60; i++ {
		f.provider.emit(f.at(12.9716+float64(i)*1e-6, 77.5946))
	}

	history := f.tracker.History()
	require.Len(t, history, 50)
	assert.Equal(t, 12.9716+59e-6, history[0].Latitude, "newest entry first")
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))

	f.tracker.Stop()
	f.tracker.Stop()

	assert.Equal(t, StateIdle, f.tracker.State())
	f.provider.mu.Lock()
	cancelled := f.provider.cancelled
	f.provider.mu.Unlock()
	assert.Equal(t, 1, cancelled)
}

func TestStopRetainsLastSampleForDisplay(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))
	f.provider.emit(f.at(13.0, 77.6))

	f.tracker.Stop()

	require.NotNil(t, f.tracker.LastSample())
	assert.Equal(t, 13.0, f.tracker.LastSample().Latitude)
	assert.NotEmpty(t, f.tracker.History())
}

func TestLateCallbacksIgnoredAfterStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))
	f.tracker.Stop()

	before := f.tracker.LastSample()
	f.provider.emit(f.at(55.0, 37.6)) // platform quirk: callback after cancel

	assert.Equal(t, StateIdle, f.tracker.State())
	assert.Equal(t, before.Latitude, f.tracker.LastSample().Latitude)
}

func TestPermissionDeniedWhileActiveStopsTracker(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))
	require.Equal(t, StateActive, f.tracker.State())

	f.provider.emitError(geo.ErrPermissionDenied)

	assert.Equal(t, StateIdle, f.tracker.State())
	assert.Equal(t, "Location permission denied", f.tracker.Snapshot().LastError)

	f.provider.mu.Lock()
	cancelled := f.provider.cancelled
	f.provider.mu.Unlock()
	assert.Equal(t, 1, cancelled)

	// A straggler sample after the forced stop changes nothing
	historyBefore := len(f.tracker.History())
	f.provider.emit(f.at(1, 1))
	assert.Len(t, f.tracker.History(), historyBefore)
}

func TestTransientWatchErrorKeepsTracking(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Start(context.Background()))

	f.provider.emitError(geo.ErrPositionUnavailable)

	assert.Equal(t, StateActive, f.tracker.State())

	// Samples keep flowing afterwards
	f.provider.emit(f.at(12.98, 77.60))
	assert.Equal(t, 12.98, f.tracker.LastSample().Latitude)
}
