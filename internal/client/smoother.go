package client

import "github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"

const (
	MinSmoothing     = 0.4
	MaxSmoothing     = 1.0
	DefaultSmoothing = 0.6
)

// Smoother is a one-pole low-pass filter with a velocity term applied to
// incoming telemetry:
//
//	velocity = (target - current) * factor
//	current += velocity
//
// A factor near 1 tracks tightly (responsive, jittery); lower factors
// trade latency for stability. It behaves identically whether frames
// arrive at full rate or thinned by upstream change-detection.
type Smoother struct {
	factors       map[domain.FieldGroup]float64
	defaultFactor float64
	current       map[domain.FieldGroup]domain.GroupValues
}

func NewSmoother(defaultFactor float64) *Smoother {
	return &Smoother{
		factors:       make(map[domain.FieldGroup]float64),
		defaultFactor: clampFactor(defaultFactor),
		current:       make(map[domain.FieldGroup]domain.GroupValues),
	}
}

// SetFactor tunes one field group's responsiveness.
func (s *Smoother) SetFactor(group domain.FieldGroup, factor float64) {
	s.factors[group] = clampFactor(factor)
}

func (s *Smoother) factor(group domain.FieldGroup) float64 {
	if f, ok := s.factors[group]; ok {
		return f
	}
	return s.defaultFactor
}

// Apply filters the frame in place and returns it. The first sample of a
// component snaps straight to the target so an avatar never animates in
// from zero.
func (s *Smoother) Apply(frame *domain.TelemetryFrame) *domain.TelemetryFrame {
	for group, vals := range frame.Groups {
		cur, ok := s.current[group]
		if !ok {
			cur = make(domain.GroupValues, len(vals))
			s.current[group] = cur
		}
		f := s.factor(group)
		for k, target := range vals {
			prev, seen := cur[k]
			if !seen {
				cur[k] = target
				continue
			}
			velocity := (target - prev) * f
			next := prev + velocity
			cur[k] = next
			vals[k] = next
		}
	}
	return frame
}

// Reset drops filter state, e.g. when a new call starts.
func (s *Smoother) Reset() {
	s.current = make(map[domain.FieldGroup]domain.GroupValues)
}

func clampFactor(f float64) float64 {
	if f < MinSmoothing {
		return MinSmoothing
	}
	if f > MaxSmoothing {
		return MaxSmoothing
	}
	return f
}
