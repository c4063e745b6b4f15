package domain

import "time"

// CredentialStatus is the liveness of one credential entry.
type CredentialStatus string

const (
	CredentialAlive     CredentialStatus = "ALIVE"
	CredentialExhausted CredentialStatus = "EXHAUSTED"
	CredentialCooldown  CredentialStatus = "COOLDOWN"
)

// EntryStatus is the diagnostic view of one pool entry.
type EntryStatus struct {
	Index     int              `json:"index"`
	Label     string           `json:"label"`
	Status    CredentialStatus `json:"status"`
	LastError string           `json:"last_error,omitempty"`
	MarkedAt  *time.Time       `json:"marked_at,omitempty"`
}
