package signals

import (
	"math"
	"testing"

	"github.com/helvinmg/crowdpulse/internal/models"
)

func TestZscoreStandardizes(t *testing.T) {
	history := []float64{1, 2, 3, 4, 5}
	// mean 3, sample stddev sqrt(2.5)
	z := Zscore(3+2*math.Sqrt(2.5), history)
	if math.Abs(z-2.0) > 1e-9 {
		t.Fatalf("expected z = 2.0, got %.6f", z)
	}
}

func TestZscoreFlatHistoryIsZero(t *testing.T) {
	if z := Zscore(42, []float64{10, 10, 10, 10}); z != 0 {
		t.Fatalf("flat history must yield z = 0, got %.4f", z)
	}
	if z := Zscore(42, []float64{10}); z != 0 {
		t.Fatalf("single-point history must yield z = 0, got %.4f", z)
	}
	if z := Zscore(42, nil); z != 0 {
		t.Fatalf("empty history must yield z = 0, got %.4f", z)
	}
}

func TestClassifyDirections(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{2.0, models.DirectionHype},
		{1.5, models.DirectionHype},
		{1.49, models.DirectionNeutral},
		{0, models.DirectionNeutral},
		{-1.49, models.DirectionNeutral},
		{-1.5, models.DirectionPanic},
		{-3.2, models.DirectionPanic},
	}
	for _, c := range cases {
		if got := Classify(c.score, 1.5); got != c.want {
			t.Errorf("Classify(%.2f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestDivergenceHypeFromLoudCrowdQuietTape(t *testing.T) {
	// Discussion two deviations above normal, delivery exactly at normal.
	score := Divergence(2.0, 0)
	if score != 2.0 {
		t.Fatalf("expected divergence 2.0, got %.2f", score)
	}
	if Classify(score, 1.5) != models.DirectionHype {
		t.Fatalf("loud crowd on a quiet tape should read as hype")
	}
}
