// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "time"

// KeySource records where an encryption key came from.
type KeySource string

const (
	KeySourceGenerated   KeySource = "generated"
	KeySourceImported    KeySource = "imported"
	KeySourceEnvironment KeySource = "environment"
)

// KeyMetadata describes an encryption key. The key material itself is never
// part of this struct.
type KeyMetadata struct {
	ID          string     `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	Source      KeySource  `json:"source"`
	Active      bool       `json:"active"`
	Description string     `json:"description,omitempty"`
	ImportedAt  *time.Time `json:"imported_at,omitempty"`
}

// Age returns how long ago the key was created relative to now.
func (k KeyMetadata) Age(now time.Time) time.Duration {
	return now.Sub(k.CreatedAt)
}

// KeyMetadataFile is the on-disk layout of the key registry metadata.
type KeyMetadataFile struct {
	Keys        map[string]KeyMetadata `json:"keys"`
	ActiveKeyID string                 `json:"active_key_id"`
	LastUpdated time.Time              `json:"last_updated"`
}
