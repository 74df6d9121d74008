// Package difficulty holds the tier model and the per-question adjustment
// policy used by adaptive attempts.
package difficulty

import (
	"fmt"
	"strings"
)

type Tier int

const (
	Easy Tier = iota
	Medium
	Hard
)

// All lists tiers from easiest to hardest.
var All = []Tier{Easy, Medium, Hard}

const (
	// Seeding thresholds over an average score in [0,1].
	hardSeedThreshold = 0.80
	easySeedThreshold = 0.60

	// Scores above escalate, below de-escalate, equal stays.
	stepThreshold = 0.5
)

func (t Tier) String() string {
	switch t {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) Valid() bool {
	return t >= Easy && t <= Hard
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid difficulty tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Parse accepts easy/medium/hard in any case. An empty string is Medium.
func Parse(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "", "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	default:
		return Medium, fmt.Errorf("unknown difficulty %q", s)
	}
}

func clamp(t Tier) Tier {
	if t < Easy {
		return Easy
	}
	if t > Hard {
		return Hard
	}
	return t
}

// Next applies the one-step rule to the tier that produced score.
func Next(current Tier, score float64) Tier {
	switch {
	case score > stepThreshold:
		return clamp(current + 1)
	case score < stepThreshold:
		return clamp(current - 1)
	default:
		return clamp(current)
	}
}

// FromAverage maps an aggregate score to a tier.
func FromAverage(avg float64) Tier {
	switch {
	case avg >= hardSeedThreshold:
		return Hard
	case avg < easySeedThreshold:
		return Easy
	default:
		return Medium
	}
}

// Seed picks the starting tier. Without prior scores the quiz baseline is used.
func Seed(prior []float64, baseline Tier) Tier {
	if len(prior) == 0 {
		return clamp(baseline)
	}
	var sum float64
	for _, s := range prior {
		sum += s
	}
	return FromAverage(sum / float64(len(prior)))
}

// Nearest returns target if available, otherwise the closest available tier.
// At equal distance the easier tier wins. ok is false when nothing is available.
func Nearest(target Tier, available func(Tier) bool) (Tier, bool) {
	target = clamp(target)
	if available(target) {
		return target, true
	}
	for d := Tier(1); d <= Hard-Easy; d++ {
		if lower := target - d; lower >= Easy && available(lower) {
			return lower, true
		}
		if higher := target + d; higher <= Hard && available(higher) {
			return higher, true
		}
	}
	return target, false
}
