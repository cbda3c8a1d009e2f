package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// ReplayProvider plays a scripted route back as position fixes. It backs the
// agent binary on hardware without a GPS receiver and doubles as a
// deterministic provider for bench runs. Implements Provider and
// PermissionQuerier.
type ReplayProvider struct {
	mu         sync.Mutex
	route      []PositionSample
	index      int
	interval   time.Duration
	permission PermissionState
	subs       map[int]*replaySubscription
	nextSubID  int
}

type replayPoint struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// NewReplayProvider creates a provider that loops over the given route
func NewReplayProvider(route []PositionSample, interval time.Duration) *ReplayProvider {
	return &ReplayProvider{
		route:      route,
		interval:   interval,
		permission: PermissionGranted,
		subs:       make(map[int]*replaySubscription),
	}
}

// NewReplayProviderFromFile loads a JSON array of route points
func NewReplayProviderFromFile(path string, interval time.Duration) (*ReplayProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading route file: %w", err)
	}

	var points []replayPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("error parsing route file: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("route file %s contains no points", path)
	}

	route := make([]PositionSample, len(points))
	for i, p := range points {
		accuracy := 10.0
		if p.Accuracy != nil {
			accuracy = *p.Accuracy
		}
		route[i] = PositionSample{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Accuracy:  accuracy,
			Heading:   p.Heading,
			Speed:     p.Speed,
		}
	}

	log.Printf("✅ Loaded replay route: %d points from %s", len(route), path)
	return NewReplayProvider(route, interval), nil
}

// SetPermission simulates a permission change from OS settings
func (p *ReplayProvider) SetPermission(state PermissionState) {
	p.mu.Lock()
	p.permission = state
	subs := make([]*replaySubscription, 0, len(p.subs))
	for _, sub := range p.subs {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	if state == PermissionDenied {
		for _, sub := range subs {
			sub.fail(ErrPermissionDenied)
		}
	}
}

// QueryPermission implements PermissionQuerier
func (p *ReplayProvider) QueryPermission(ctx context.Context) (PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission, nil
}

// CurrentPosition returns the current point of the route
func (p *ReplayProvider) CurrentPosition(ctx context.Context, opts Options) (PositionSample, error) {
	if err := ctx.Err(); err != nil {
		return PositionSample{}, ErrTimeout
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.permission == PermissionDenied {
		return PositionSample{}, ErrPermissionDenied
	}
	if len(p.route) == 0 {
		return PositionSample{}, ErrPositionUnavailable
	}

	sample := p.route[p.index%len(p.route)]
	sample.CapturedAt = time.Now()
	return sample, nil
}

// WatchPosition streams route points at the configured interval
func (p *ReplayProvider) WatchPosition(opts Options, onSample SampleFunc, onError ErrorFunc) (Subscription, error) {
	p.mu.Lock()
	if p.permission == PermissionDenied {
		p.mu.Unlock()
		return nil, ErrPermissionDenied
	}

	id := p.nextSubID
	p.nextSubID++
	sub := &replaySubscription{
		provider: p,
		id:       id,
		onSample: onSample,
		onError:  onError,
		done:     make(chan struct{}),
	}
	p.subs[id] = sub
	p.mu.Unlock()

	go sub.run(p.interval)
	return sub, nil
}

func (p *ReplayProvider) advance() (PositionSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.permission == PermissionDenied {
		return PositionSample{}, ErrPermissionDenied
	}
	if len(p.route) == 0 {
		return PositionSample{}, ErrPositionUnavailable
	}

	p.index = (p.index + 1) % len(p.route)
	sample := p.route[p.index]
	sample.CapturedAt = time.Now()
	return sample, nil
}

func (p *ReplayProvider) removeSub(id int) {
	p.mu.Lock()
	delete(p.subs, id)
	p.mu.Unlock()
}

type replaySubscription struct {
	provider *ReplayProvider
	id       int
	onSample SampleFunc
	onError  ErrorFunc
	once     sync.Once
	done     chan struct{}
}

func (s *replaySubscription) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			sample, err := s.provider.advance()
			if err != nil {
				s.onError(err)
				continue
			}
			s.onSample(sample)
		}
	}
}

func (s *replaySubscription) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.onError(err)
}

// Cancel stops the stream. Idempotent.
func (s *replaySubscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.provider.removeSub(s.id)
	})
}
