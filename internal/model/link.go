package model

import (
	"strings"
	"time"
)

// Link represents a shortened link entry in the system
type Link struct {
	Code           string     `json:"code" db:"code"`
	URL            string     `json:"url" db:"url"`
	PasswordDigest string     `json:"-" db:"password_digest"`
	ExpiresAt      *time.Time `json:"expires_at" db:"expires_at"`
	Clicks         int64      `json:"clicks" db:"clicks"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Representation is the external JSON shape of a link, decoupled from
// the storage schema
type Representation struct {
	OriginalURL string     `json:"original_url"`
	ShortURL    string     `json:"short_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Code        string     `json:"code"`
	Clicks      int64      `json:"clicks"`
}

// Protected reports whether a redirect requires HTTP Basic credentials
func (l *Link) Protected() bool {
	return l.PasswordDigest != ""
}

// Expired reports whether the link's expiry has passed at the given
// instant. Links without an expiry never expire.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Representation builds the external shape using the configured base URL
func (l *Link) Representation(baseURL string) Representation {
	return Representation{
		OriginalURL: l.URL,
		ShortURL:    strings.TrimRight(baseURL, "/") + "/" + l.Code,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
		Code:        l.Code,
		Clicks:      l.Clicks,
	}
}
