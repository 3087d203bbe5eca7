package models

import "time"

type CastStatus string

const (
	CastPending   CastStatus = "pending"
	CastPublished CastStatus = "published"
	CastFailed    CastStatus = "failed"
	// CastUnknown marks a publish the authority accepted without returning a hash.
	CastUnknown CastStatus = "unknown"
)

// Cast is a cast ledger entry. ContentID holds the cast hash once published.
type Cast struct {
	ID           string
	SignerID     string
	AuthorUserID int64
	Text         string
	Status       CastStatus
	ContentID    string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
