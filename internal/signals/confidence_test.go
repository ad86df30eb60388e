package signals

import (
	"math"
	"testing"

	"github.com/helvinmg/crowdpulse/internal/config"
)

func testSignalsConfig() config.SignalsConfig {
	return config.SignalsConfig{
		DivergenceThreshold:   1.5,
		ConsistencyNormalizer: 4.0,
		TargetRecordCount:     100,
		WeightModelCertainty:  0.4,
		WeightDataSufficiency: 0.3,
		WeightConsistency:     0.3,
	}
}

func TestConfidenceBlendsWeights(t *testing.T) {
	cfg := testSignalsConfig()

	if got := Confidence(1, 1, 1, cfg); got != 1 {
		t.Fatalf("perfect inputs should blend to 1, got %.4f", got)
	}
	if got := Confidence(0, 0, 0, cfg); got != 0 {
		t.Fatalf("zero inputs should blend to 0, got %.4f", got)
	}

	got := Confidence(0.5, 1, 0, cfg)
	want := 0.4*0.5 + 0.3*1
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %.4f, got %.4f", want, got)
	}
}

func TestConfidenceClampsInputs(t *testing.T) {
	cfg := testSignalsConfig()

	if got := Confidence(3.0, -2.0, 1.0, cfg); got != 0.4+0.3 {
		t.Fatalf("out-of-range inputs must be clamped before blending, got %.4f", got)
	}
}

func TestDataSufficiency(t *testing.T) {
	if got := DataSufficiency(50, 100); got != 0.5 {
		t.Fatalf("50 of 100 records should give 0.5, got %.4f", got)
	}
	if got := DataSufficiency(250, 100); got != 1 {
		t.Fatalf("over-target volume should saturate at 1, got %.4f", got)
	}
	if got := DataSufficiency(0, 100); got != 0 {
		t.Fatalf("no records should give 0, got %.4f", got)
	}
}

func TestSignalConsistency(t *testing.T) {
	if got := SignalConsistency([]float64{0.8, 0.8, 0.8, 0.8}, 4.0); got != 1 {
		t.Fatalf("steady history should give full consistency, got %.4f", got)
	}
	if got := SignalConsistency([]float64{4, -4, 4, -4, 4, -4}, 4.0); got != 0 {
		t.Fatalf("wildly flipping history should give 0, got %.4f", got)
	}
	if got := SignalConsistency([]float64{1.2}, 4.0); got != 0.5 {
		t.Fatalf("too little history should give the midpoint, got %.4f", got)
	}
}
