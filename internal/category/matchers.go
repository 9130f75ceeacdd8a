package category

import (
	"sort"
	"strings"

	"github.com/spec-kit/ticket-engine/internal/platform"
)

// Candidate is a container prepared for matching: its id plus normalized name.
type Candidate struct {
	ID   string
	Norm string
}

// Matcher is one step of the resolution chain. Matchers are pure; the first
// hit in chain order wins.
type Matcher func(expected string, candidates []Candidate) (string, bool)

// SortContainers orders containers ascending by creation time with id as the
// tie-break. Platform enumeration order is not stable, so every resolution
// pass sorts before matching to keep results deterministic.
func SortContainers(containers []platform.Container) {
	sort.Slice(containers, func(i, j int) bool {
		if !containers[i].CreatedAt.Equal(containers[j].CreatedAt) {
			return containers[i].CreatedAt.Before(containers[j].CreatedAt)
		}
		return containers[i].ID < containers[j].ID
	})
}

// Candidates normalizes sorted containers for the matcher chain.
func Candidates(containers []platform.Container) []Candidate {
	out := make([]Candidate, 0, len(containers))
	for _, c := range containers {
		out = append(out, Candidate{ID: c.ID, Norm: Normalize(c.Name)})
	}
	return out
}

// MatchExact matches the normalized expected name exactly.
func MatchExact(expected string, candidates []Candidate) (string, bool) {
	for _, c := range candidates {
		if c.Norm == expected {
			return c.ID, true
		}
	}
	return "", false
}

// MatchSubstring matches when either normalized name contains the other.
func MatchSubstring(expected string, candidates []Candidate) (string, bool) {
	for _, c := range candidates {
		if c.Norm == "" {
			continue
		}
		if strings.Contains(expected, c.Norm) || strings.Contains(c.Norm, expected) {
			return c.ID, true
		}
	}
	return "", false
}

// MatchWordOverlap matches when any word (length > 2) of the expected name
// matches a candidate word exactly, by containment, or by sharing a
// 4-character prefix.
func MatchWordOverlap(expected string, candidates []Candidate) (string, bool) {
	expectedWords := Words(expected)
	if len(expectedWords) == 0 {
		return "", false
	}
	for _, c := range candidates {
		for _, cw := range Words(c.Norm) {
			for _, ew := range expectedWords {
				if wordsSimilar(ew, cw) {
					return c.ID, true
				}
			}
		}
	}
	return "", false
}

func wordsSimilar(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if len(a) >= 4 && len(b) >= 4 && a[:4] == b[:4] {
		return true
	}
	return false
}

// MatchVariations tries a literal set of known name variations.
func MatchVariations(variations []string) Matcher {
	normalized := make([]string, 0, len(variations))
	for _, v := range variations {
		if n := Normalize(v); n != "" {
			normalized = append(normalized, n)
		}
	}
	return func(_ string, candidates []Candidate) (string, bool) {
		for _, c := range candidates {
			for _, v := range normalized {
				if c.Norm == v {
					return c.ID, true
				}
			}
		}
		return "", false
	}
}
