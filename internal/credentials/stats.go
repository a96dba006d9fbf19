// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package credentials

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/toeirei/credvault/internal/model"
)

// GetCredentialStats aggregates usage over all credentials. Performers are
// drawn from credentials with at least the configured minimum attempts.
func (s *Service) GetCredentialStats(ctx context.Context) (*model.CredentialStats, error) {
	list, err := s.store.ListCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cutoff := s.now().Add(-s.activeWindow)

	st := &model.CredentialStats{Total: len(list)}
	var perf []model.Performer
	for _, c := range list {
		if usedSince(c.LastUsed, cutoff) {
			st.Active++
		}
		if c.HasSecret {
			st.WithSecret++
		}
		if c.UsesKeyAuth {
			st.KeyAuth++
		}
		st.TotalSuccesses += c.SuccessCount
		st.TotalFailures += c.FailureCount
		if c.Attempts() >= s.minAttempts {
			perf = append(perf, model.Performer{CredentialID: c.ID, Name: c.Name, Attempts: c.Attempts(), SuccessRate: c.SuccessRate()})
		}
	}
	st.SuccessRate, st.FailureRate = rates(st.TotalSuccesses, st.TotalFailures)
	st.TopPerformers, st.WorstPerformers = performers(perf)
	return st, nil
}

// GetTagCredentialStats aggregates the per-tag counters of tagID's
// associations.
func (s *Service) GetTagCredentialStats(ctx context.Context, tagID int64) (*model.TagCredentialStats, error) {
	list, err := s.store.GetTagAssociations(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to load associations for tag %d: %w", tagID, err)
	}
	cutoff := s.now().Add(-s.activeWindow)

	st := &model.TagCredentialStats{TagID: tagID, Total: len(list)}
	var perf []model.Performer
	for _, tc := range list {
		if usedSince(tc.Tag.LastUsed, cutoff) {
			st.Active++
		}
		st.TotalSuccesses += tc.Tag.SuccessCount
		st.TotalFailures += tc.Tag.FailureCount
		if tc.Tag.Attempts() >= s.minTagAttempts {
			perf = append(perf, model.Performer{
				CredentialID: tc.Credential.ID,
				Name:         tc.Credential.Name,
				Attempts:     tc.Tag.Attempts(),
				SuccessRate:  tc.Tag.SuccessRate(),
			})
		}
	}
	st.SuccessRate, st.FailureRate = rates(st.TotalSuccesses, st.TotalFailures)
	st.TopPerformers, st.WorstPerformers = performers(perf)
	return st, nil
}

func usedSince(t *time.Time, cutoff time.Time) bool {
	return t != nil && !t.Before(cutoff)
}

func rates(success, failure int) (float64, float64) {
	total := success + failure
	if total == 0 {
		return 0, 0
	}
	return float64(success) / float64(total), float64(failure) / float64(total)
}

// performers returns the best and the worst entries by success rate. Ties go
// to the entry with more attempts, then to the lower id.
func performers(list []model.Performer) (top, worst []model.Performer) {
	if len(list) == 0 {
		return nil, nil
	}
	sorted := append([]model.Performer(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.CredentialID < b.CredentialID
	})
	top = append(top, sorted[:min(performerCount, len(sorted))]...)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate < b.SuccessRate
		}
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.CredentialID < b.CredentialID
	})
	worst = append(worst, sorted[:min(performerCount, len(sorted))]...)
	return top, worst
}
