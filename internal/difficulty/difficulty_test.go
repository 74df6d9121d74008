package difficulty

import (
	"encoding/json"
	"testing"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		current  Tier
		score    float64
		expected Tier
	}{
		{"correct escalates", Medium, 1, Hard},
		{"incorrect de-escalates", Medium, 0, Easy},
		{"hard ceiling", Hard, 1, Hard},
		{"easy floor", Easy, 0, Easy},
		{"partial above half rounds up", Easy, 0.75, Medium},
		{"partial below half rounds down", Hard, 0.25, Medium},
		{"exact half stays", Medium, 0.5, Medium},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Next(tc.current, tc.score); got != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestNext_Monotonic(t *testing.T) {
	for _, tier := range All {
		for _, score := range []float64{0, 0.1, 0.49, 0.5, 0.51, 0.9, 1} {
			next := Next(tier, score)
			if !next.Valid() {
				t.Fatalf("tier %s score %v produced invalid tier %d", tier, score, next)
			}
			if score > 0.5 && next < tier {
				t.Fatalf("correct answer lowered tier %s to %s", tier, next)
			}
			if score < 0.5 && next > tier {
				t.Fatalf("incorrect answer raised tier %s to %s", tier, next)
			}
			if d := int(next) - int(tier); d > 1 || d < -1 {
				t.Fatalf("tier moved more than one step: %s -> %s", tier, next)
			}
		}
	}
}

func TestScenarioA(t *testing.T) {
	tier := Seed(nil, Medium)
	if tier != Medium {
		t.Fatalf("expected medium start, got %s", tier)
	}
	tier = Next(tier, 1)
	if tier != Hard {
		t.Fatalf("expected hard after correct answer, got %s", tier)
	}
	tier = Next(tier, 0)
	if tier != Medium {
		t.Fatalf("expected medium after incorrect answer, got %s", tier)
	}
}

func TestSeed(t *testing.T) {
	tests := []struct {
		name     string
		prior    []float64
		baseline Tier
		expected Tier
	}{
		{"no history uses baseline", nil, Medium, Medium},
		{"no history easy baseline", nil, Easy, Easy},
		{"strong history", []float64{0.9, 0.8}, Medium, Hard},
		{"exactly eighty percent", []float64{0.8}, Easy, Hard},
		{"weak history", []float64{0.5, 0.4}, Hard, Easy},
		{"middle history", []float64{0.6, 0.7}, Easy, Medium},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Seed(tc.prior, tc.baseline); got != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestNearest(t *testing.T) {
	only := func(tiers ...Tier) func(Tier) bool {
		return func(t Tier) bool {
			for _, x := range tiers {
				if x == t {
					return true
				}
			}
			return false
		}
	}

	tests := []struct {
		name      string
		target    Tier
		available func(Tier) bool
		expected  Tier
		ok        bool
	}{
		{"target available", Hard, only(Easy, Hard), Hard, true},
		{"falls back one step", Hard, only(Medium, Easy), Medium, true},
		{"falls back two steps", Hard, only(Easy), Easy, true},
		{"tie prefers easier", Medium, only(Easy, Hard), Easy, true},
		{"nothing left", Medium, only(), Medium, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Nearest(tc.target, tc.available)
			if ok != tc.ok || got != tc.expected {
				t.Fatalf("expected (%s, %v), got (%s, %v)", tc.expected, tc.ok, got, ok)
			}
		})
	}
}

func TestTier_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		T Tier `json:"t"`
	}{Hard})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"t":"hard"}` {
		t.Fatalf("unexpected json %s", b)
	}

	var out struct {
		T Tier `json:"t"`
	}
	if err := json.Unmarshal([]byte(`{"t":"Easy"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.T != Easy {
		t.Fatalf("expected easy, got %s", out.T)
	}

	if err := json.Unmarshal([]byte(`{"t":"extreme"}`), &out); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}
