package utils

import (
	"math"
	"testing"
)

const floatEpsilon = 1e-6

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatEpsilon
}

func TestLogisticLogitRoundTrip(t *testing.T) {
	cases := []float64{0.001, 0.1, 0.5, 0.74, 0.9, 0.999}
	for _, p := range cases {
		got := Logistic(Logit(p))
		if math.Abs(got-p) > 1e-9 {
			t.Fatalf("logistic(logit(%v)) = %v, want ~%v", p, got, p)
		}
	}
}

func TestLogitClampsExtremes(t *testing.T) {
	if math.IsInf(Logit(0), 0) || math.IsInf(Logit(1), 0) {
		t.Fatal("logit should clamp away from +/-Inf at the boundaries")
	}
}

func TestBlendLogOddsConvergesToLiveNearEnd(t *testing.T) {
	blended := BlendLogOdds(0.5, 0.9, 1.0)
	if !floatEquals(blended, Logistic(Logit(0.9))) && math.Abs(blended-0.9) > 0.01 {
		t.Fatalf("blend at progress=1 should be ~all-live, got %v", blended)
	}
}

func TestBlendLogOddsEqualInputsUnchangedAtStart(t *testing.T) {
	blended := BlendLogOdds(0.5, 0.5, 0)
	if math.Abs(blended-0.5) > 1e-9 {
		t.Fatalf("blend with equal pre/live probabilities should be unchanged, got %v", blended)
	}
}

func TestKellyFraction(t *testing.T) {
	cases := []struct {
		name string
		b, p float64
		want float64
	}{
		{"positive edge", 1.0, 0.6, 0.2},
		{"no edge", 1.0, 0.5, 0.0},
		{"negative edge clamped to zero", 1.0, 0.3, 0.0},
		{"zero payout", 0, 0.9, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := KellyFraction(c.b, c.p)
			if !floatEquals(got, c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 10) != 5 {
		t.Fatal("value within range should be unchanged")
	}
	if Clamp(-1, 0, 10) != 0 {
		t.Fatal("value below min should clamp to min")
	}
	if Clamp(11, 0, 10) != 10 {
		t.Fatal("value above max should clamp to max")
	}
}

func TestCentsDollarsRoundTrip(t *testing.T) {
	cases := []float64{0.01, 1.23, 99.99, 0.5}
	for _, d := range cases {
		cents := CentsFromDollars(d)
		back := CentsToDollars(cents)
		if !floatEquals(back, d) {
			t.Fatalf("round trip %v -> %d -> %v", d, cents, back)
		}
	}
}

func TestProbPriceCentsRoundTrip(t *testing.T) {
	if got := ProbToPriceCents(0.61); got != 61 {
		t.Fatalf("got %d, want 61", got)
	}
	if got := PriceCentsToProb(61); !floatEquals(got, 0.61) {
		t.Fatalf("got %v, want 0.61", got)
	}
}

func TestRoundToTick(t *testing.T) {
	if got := RoundToTick(0.567, 0.01); !floatEquals(got, 0.57) {
		t.Fatalf("got %v, want 0.57", got)
	}
	if got := RoundToTick(0.567, 0); !floatEquals(got, 0.567) {
		t.Fatal("tick <= 0 should be a no-op")
	}
}
