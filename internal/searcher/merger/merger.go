// Package merger turns raw candidates from several backends into one ranked
// list. Merge is pure: the same input always gives the same output,
// regardless of the order in which backends answered.
package merger

import (
	"sort"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
)

type key struct {
	source string
	target string
}

type merged struct {
	match    tm.RankedMatch
	priority int
	seen     map[string]struct{}
}

// Merge normalizes each candidate as raw score times backend weight clamped
// to [0,1], drops those below the backend's min score, collapses identical
// (source, target) pairs keeping the best score, then orders by score,
// backend priority, shorter target text, and lexical target and source.
// At most maxResults matches are returned, ranked from 1. Candidates from
// backends missing in configs are ignored.
func Merge(candidatesBySource map[string][]tm.MatchCandidate, configs []backend.Config, maxResults int) []tm.RankedMatch {
	if maxResults <= 0 {
		return []tm.RankedMatch{}
	}
	byName := make(map[string]backend.Config, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg
	}

	// Walk backends in priority order so contributor lists are stable.
	names := make([]string, 0, len(candidatesBySource))
	for name := range candidatesBySource {
		if _, ok := byName[name]; ok {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return byName[names[i]].Priority < byName[names[j]].Priority
	})

	groups := make(map[key]*merged)
	order := make([]*merged, 0)
	for _, name := range names {
		cfg := byName[name]
		for _, c := range candidatesBySource[name] {
			score := normalize(c.RawScore, cfg.Weight)
			if score < cfg.MinScore {
				continue
			}
			k := key{source: c.SourceText, target: c.TargetText}
			g, ok := groups[k]
			if !ok {
				g = &merged{
					match: tm.RankedMatch{
						UnitRef:    c.UnitRef,
						SourceText: c.SourceText,
						TargetText: c.TargetText,
						Score:      score,
					},
					priority: cfg.Priority,
					seen:     make(map[string]struct{}),
				}
				groups[k] = g
				order = append(order, g)
			} else if score > g.match.Score {
				g.match.Score = score
				g.match.UnitRef = c.UnitRef
				g.priority = cfg.Priority
			}
			if _, dup := g.seen[name]; !dup {
				g.seen[name] = struct{}{}
				g.match.Backends = append(g.match.Backends, name)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return less(order[i], order[j])
	})
	if len(order) > maxResults {
		order = order[:maxResults]
	}

	out := make([]tm.RankedMatch, len(order))
	for i, g := range order {
		out[i] = g.match
		out[i].Rank = i + 1
	}
	return out
}

func normalize(raw, weight float64) float64 {
	s := raw * weight
	switch {
	case s != s || s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

func less(a, b *merged) bool {
	if a.match.Score != b.match.Score {
		return a.match.Score > b.match.Score
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	la, lb := utf8.RuneCountInString(a.match.TargetText), utf8.RuneCountInString(b.match.TargetText)
	if la != lb {
		return la < lb
	}
	if a.match.TargetText != b.match.TargetText {
		return a.match.TargetText < b.match.TargetText
	}
	return a.match.SourceText < b.match.SourceText
}
