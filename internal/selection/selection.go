// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package selection ranks the credentials associated with a tag. It is pure:
// every function takes the current time explicitly and touches no storage.
package selection

import (
	"math"
	"sort"
	"time"

	"github.com/toeirei/credvault/internal/model"
)

// Score weights. They sum to 1.
const (
	SuccessWeight  = 0.75
	PriorityWeight = 0.15
	RecencyWeight  = 0.10
)

const (
	// MinAttempts is the number of attempts after which an observed success
	// rate replaces the neutral prior.
	MinAttempts = 3
	// NeutralSuccessScore is used when neither the tag nor the credential has
	// enough history.
	NeutralSuccessScore = 0.5
	// RecencyWindow is the horizon over which a last success still counts.
	RecencyWindow = 30 * 24 * time.Hour
	// MaxPriority maps to a priority score of 1.
	MaxPriority = 100.0

	optimizeTop  = 100.0
	optimizeStep = 10.0
	// optimizeRateWeight splits the optimized score between success rate and
	// recency when a last success is known.
	optimizeRateWeight = 0.7
)

// Candidate is the input of the scoring functions.
type Candidate struct {
	CredentialID   int64
	Priority       float64
	TagSuccess     int
	TagFailure     int
	TagLastSuccess *time.Time
	GlobalSuccess  int
	GlobalFailure  int
}

// CandidateFrom builds a Candidate out of a stored association.
func CandidateFrom(tc model.TaggedCredential) Candidate {
	return Candidate{
		CredentialID:   tc.Credential.ID,
		Priority:       tc.Tag.Priority,
		TagSuccess:     tc.Tag.SuccessCount,
		TagFailure:     tc.Tag.FailureCount,
		TagLastSuccess: tc.Tag.LastSuccess,
		GlobalSuccess:  tc.Credential.SuccessCount,
		GlobalFailure:  tc.Credential.FailureCount,
	}
}

// Breakdown is a score and the components it was computed from.
type Breakdown struct {
	Success  float64
	Priority float64
	Recency  float64
	Score    float64
}

// Score computes the weighted smart-selection score of c at now.
func Score(c Candidate, now time.Time) Breakdown {
	var b Breakdown

	switch {
	case c.TagSuccess+c.TagFailure >= MinAttempts:
		b.Success = float64(c.TagSuccess) / float64(c.TagSuccess+c.TagFailure)
	case c.GlobalSuccess+c.GlobalFailure >= MinAttempts:
		b.Success = float64(c.GlobalSuccess) / float64(c.GlobalSuccess+c.GlobalFailure)
	default:
		b.Success = NeutralSuccessScore
	}

	b.Priority = math.Max(0, math.Min(1, c.Priority/MaxPriority))

	if c.TagLastSuccess != nil {
		b.Recency = recency(*c.TagLastSuccess, now)
	}

	b.Score = SuccessWeight*b.Success + PriorityWeight*b.Priority + RecencyWeight*b.Recency
	return b
}

// Rank scores every candidate and returns them best first. Equal scores are
// ordered by higher priority, then lower credential id. A limit <= 0 returns
// all of them.
func Rank(cands []model.TaggedCredential, limit int, now time.Time) []model.ScoredCredential {
	out := make([]model.ScoredCredential, 0, len(cands))
	for _, tc := range cands {
		b := Score(CandidateFrom(tc), now)
		out = append(out, model.ScoredCredential{
			TaggedCredential: tc,
			SuccessScore:     b.Success,
			PriorityScore:    b.Priority,
			RecencyScore:     b.Recency,
			Score:            b.Score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Tag.Priority != b.Tag.Priority {
			return a.Tag.Priority > b.Tag.Priority
		}
		return a.Credential.ID < b.Credential.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// OptimizedPriorities derives new priorities from per-tag history. Only
// associations with at least one attempt take part; the best gets 100, the
// next 90 and so on, never below 0. The result is keyed by credential id and
// is empty when no association has history.
func OptimizedPriorities(assocs []model.CredentialTag, now time.Time) map[int64]float64 {
	type scored struct {
		id    int64
		score float64
	}
	var list []scored
	for _, a := range assocs {
		attempts := a.SuccessCount + a.FailureCount
		if attempts == 0 {
			continue
		}
		rate := float64(a.SuccessCount) / float64(attempts)
		score := rate
		if a.LastSuccess != nil {
			score = optimizeRateWeight*rate + (1-optimizeRateWeight)*recency(*a.LastSuccess, now)
		}
		list = append(list, scored{id: a.CredentialID, score: score})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].id < list[j].id
	})

	out := make(map[int64]float64, len(list))
	for i, s := range list {
		out[s.id] = math.Max(0, optimizeTop-float64(i)*optimizeStep)
	}
	return out
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

// recency falls linearly from 1 to 0 over RecencyWindow. A last success in
// the future (clock skew) counts as now.
func recency(last, now time.Time) float64 {
	return math.Max(0, math.Min(1, 1-days(now.Sub(last))/days(RecencyWindow)))
}
