// Package models defines GORM data models for sharedshape.
package models

import "time"

// Component is the local resolution state of one external component
// pointer. The pointer itself (path, URL, pinned revision) lives in the
// project's externals.yaml; this row records what this checkout has done
// with it.
type Component struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Path matches the pointer path in externals.yaml.
	Path string `gorm:"uniqueIndex;not null" json:"path"`
	// URL is copied from the manifest by init/sync and may diverge from it
	// locally until the next sync.
	URL    string `gorm:"not null" json:"url"`
	Branch string `json:"branch"`

	// Initialized: "extern init" ran for this path. Update skips the
	// pointer otherwise.
	Initialized bool `json:"initialized"`
	// CheckedOut: the directory holds a materialized checkout.
	CheckedOut bool `json:"checked_out"`
	// Revision is the commit last checked out by update, "" if none.
	Revision    string    `json:"revision"`
	LastUpdated time.Time `json:"last_updated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
