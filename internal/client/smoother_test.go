package client

import (
	"math"
	"testing"

	"github.com/Karanveer2330/Persona-Chat-sub000/internal/domain"
)

func armFrame(x float64) *domain.TelemetryFrame {
	return &domain.TelemetryFrame{
		Groups: map[domain.FieldGroup]domain.GroupValues{
			domain.GroupLeftUpperArm: {"x": x},
		},
	}
}

func TestSmootherFirstSampleSnaps(t *testing.T) {
	t.Parallel()
	s := NewSmoother(0.5)
	out := s.Apply(armFrame(0.8))
	if got := out.Groups[domain.GroupLeftUpperArm]["x"]; got != 0.8 {
		t.Errorf("first sample = %v, want snap to 0.8", got)
	}
}

func TestSmootherVelocityStep(t *testing.T) {
	t.Parallel()
	s := NewSmoother(0.5)
	s.Apply(armFrame(0.0))

	// current + (target - current) * factor = 0 + (1.0-0)*0.5
	out := s.Apply(armFrame(1.0))
	if got := out.Groups[domain.GroupLeftUpperArm]["x"]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("second sample = %v, want 0.5", got)
	}
	// 0.5 + (1.0-0.5)*0.5
	out = s.Apply(armFrame(1.0))
	if got := out.Groups[domain.GroupLeftUpperArm]["x"]; math.Abs(got-0.75) > 1e-9 {
		t.Errorf("third sample = %v, want 0.75", got)
	}
}

func TestSmootherConvergesAtReducedRate(t *testing.T) {
	t.Parallel()
	s := NewSmoother(0.6)
	s.Apply(armFrame(0.0))

	// Repeating the same thinned target must converge onto it.
	var got float64
	for i := 0; i < 40; i++ {
		got = s.Apply(armFrame(1.0)).Groups[domain.GroupLeftUpperArm]["x"]
	}
	if math.Abs(got-1.0) > 1e-6 {
		t.Errorf("after 40 samples: %v, want ~1.0", got)
	}
}

func TestSmootherFactorClamped(t *testing.T) {
	t.Parallel()
	s := NewSmoother(0.01)
	if s.defaultFactor != MinSmoothing {
		t.Errorf("default factor = %v, want clamped to %v", s.defaultFactor, MinSmoothing)
	}
	s.SetFactor(domain.GroupFace, 5)
	if got := s.factor(domain.GroupFace); got != MaxSmoothing {
		t.Errorf("face factor = %v, want clamped to %v", got, MaxSmoothing)
	}
}

func TestSmootherPerGroupFactor(t *testing.T) {
	t.Parallel()
	s := NewSmoother(0.5)
	s.SetFactor(domain.GroupFace, 1.0)

	frame := &domain.TelemetryFrame{
		Groups: map[domain.FieldGroup]domain.GroupValues{
			domain.GroupFace:         {"jaw": 0.0},
			domain.GroupLeftUpperArm: {"x": 0.0},
		},
	}
	s.Apply(frame)
	next := &domain.TelemetryFrame{
		Groups: map[domain.FieldGroup]domain.GroupValues{
			domain.GroupFace:         {"jaw": 1.0},
			domain.GroupLeftUpperArm: {"x": 1.0},
		},
	}
	out := s.Apply(next)
	if got := out.Groups[domain.GroupFace]["jaw"]; got != 1.0 {
		t.Errorf("face with factor 1.0 = %v, want immediate 1.0", got)
	}
	if got := out.Groups[domain.GroupLeftUpperArm]["x"]; got != 0.5 {
		t.Errorf("arm with factor 0.5 = %v, want 0.5", got)
	}
}

func TestSmootherReset(t *testing.T) {
	t.Parallel()
	s := NewSmoother(0.5)
	s.Apply(armFrame(0.0))
	s.Reset()

	out := s.Apply(armFrame(1.0))
	if got := out.Groups[domain.GroupLeftUpperArm]["x"]; got != 1.0 {
		t.Errorf("first sample after reset = %v, want snap to 1.0", got)
	}
}
