// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package model

// Performer is one entry of a top/bottom performer list.
type Performer struct {
	CredentialID int64   `json:"credential_id"`
	Name         string  `json:"name"`
	Attempts     int     `json:"attempts"`
	SuccessRate  float64 `json:"success_rate"`
}

// CredentialStats aggregates usage across all credentials.
type CredentialStats struct {
	Total           int         `json:"total"`
	Active          int         `json:"active"`
	WithSecret      int         `json:"with_secret"`
	KeyAuth         int         `json:"key_auth"`
	TotalSuccesses  int         `json:"total_successes"`
	TotalFailures   int         `json:"total_failures"`
	SuccessRate     float64     `json:"success_rate"`
	FailureRate     float64     `json:"failure_rate"`
	TopPerformers   []Performer `json:"top_performers"`
	WorstPerformers []Performer `json:"worst_performers"`
}

// TagCredentialStats aggregates usage of the credentials associated with a tag.
type TagCredentialStats struct {
	TagID           int64       `json:"tag_id"`
	Total           int         `json:"total"`
	Active          int         `json:"active"`
	TotalSuccesses  int         `json:"total_successes"`
	TotalFailures   int         `json:"total_failures"`
	SuccessRate     float64     `json:"success_rate"`
	FailureRate     float64     `json:"failure_rate"`
	TopPerformers   []Performer `json:"top_performers"`
	WorstPerformers []Performer `json:"worst_performers"`
}

// ReencryptStats is the outcome of a re-encryption run. Failed > 0 means some
// batches were rolled back; the credentials in them still use their old key.
type ReencryptStats struct {
	Total     int      `json:"total"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Batches   int      `json:"batches"`
	Rollbacks int      `json:"rollbacks"`
	Errors    []string `json:"errors,omitempty"`
}
