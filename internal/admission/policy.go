package admission

import (
	"fmt"
	"sync"

	"github.com/devrev/securegpx/internal/model"
)

// Policy names accepted by New
const (
	PolicyAlways      = "always"
	PolicyMinDistance = "min_distance"
)

// Policy decides whether an incoming track point is recorded. Free waypoints
// are always recorded and never reach a policy.
type Policy interface {
	Admit(track string, p *model.WayPoint) bool
}

// Config selects and configures a policy
type Config struct {
	Policy string
	// Factor scales the summed accuracies of two points into the minimum
	// distance in metres between them.
	Factor float64
}

// New builds the configured policy
func New(cfg Config) (Policy, error) {
	switch cfg.Policy {
	case "", PolicyAlways:
		return Always{}, nil
	case PolicyMinDistance:
		if cfg.Factor < 0 {
			return nil, fmt.Errorf("min_distance factor must not be negative, got %v", cfg.Factor)
		}
		return NewMinDistance(cfg.Factor), nil
	default:
		return nil, fmt.Errorf("unknown admission policy %q", cfg.Policy)
	}
}

// Always admits every point
type Always struct{}

func (Always) Admit(string, *model.WayPoint) bool {
	return true
}

// MinDistance admits a point only when it is further from the last admitted
// point of the same track than factor times their summed accuracies.
type MinDistance struct {
	factor float64

	mu   sync.Mutex
	last map[string]*model.WayPoint
}

func NewMinDistance(factor float64) *MinDistance {
	return &MinDistance{
		factor: factor,
		last:   make(map[string]*model.WayPoint),
	}
}

func (m *MinDistance) Admit(track string, p *model.WayPoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.last[track]
	if ok && !Separated(p, last, m.factor) {
		return false
	}
	m.last[track] = p
	return true
}

// Separated reports whether the distance between a and b in metres exceeds
// factor * (a.Accuracy + b.Accuracy)
func Separated(a, b *model.WayPoint, factor float64) bool {
	return a.DistanceKm(b)*1000 > factor*(a.Accuracy+b.Accuracy)
}
