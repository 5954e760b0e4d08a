package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Document is a fetched web page ready for ingestion. It is immutable once
// committed to the index; refreshing a source deletes and re-ingests it.
type Document struct {
	ID        string            `bson:"document_id" json:"document_id"`
	URL       string            `bson:"url" json:"url"`
	Title     string            `bson:"title,omitempty" json:"title,omitempty"`
	Text      string            `bson:"text" json:"text"`
	FetchedAt time.Time         `bson:"fetched_at" json:"fetched_at"`
	Metadata  map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// NewDocumentID derives a stable document identifier from a source URL.
// Re-fetching the same URL yields the same ID so re-ingestion overwrites
// instead of duplicating.
func NewDocumentID(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:12])
}

// Domain returns the source host with any www. prefix stripped, or ""
// when the URL does not parse.
func (d Document) Domain() string {
	parsed, err := url.Parse(d.URL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}
