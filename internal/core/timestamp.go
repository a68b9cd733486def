package core

import (
	"net/mail"
	"strings"
	"time"
)

// Layouts tried after the RFC 5322 date parser. Mail sources in the
// wild disagree on date formats, so the raw value is kept verbatim on
// the message and only the normalized field is ever range-queried.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02 Jan 2006 15:04:05 -0700",
}

// NormalizeTimestamp parses a raw source timestamp into a canonical UTC
// instant. On parse failure it falls back to the supplied ingestion
// time and reports ok=false; the message is still stored.
func NormalizeTimestamp(raw string, fallback time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback.UTC(), false
	}

	// Email Date headers first.
	if t, err := mail.ParseDate(raw); err == nil {
		return t.UTC(), true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	return fallback.UTC(), false
}
