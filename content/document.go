// Package content turns raw content API documents into the blog's domain
// model: normalized articles and summaries, paginated listings and fully
// assembled article pages with previous/next navigation.
package content

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/richtext"
)

// Substituted when the API omits a publication timestamp.
var (
	SentinelFirstPublished = time.Date(2000, time.January, 18, 0, 0, 0, 0, time.UTC)
	SentinelLastPublished  = time.Date(2000, time.January, 18, 12, 0, 0, 0, time.UTC)
)

// Document is a normalized article.
type Document struct {
	// ID is the upstream document id. Navigation queries anchor on it.
	ID             string
	UID            string
	FirstPublished time.Time
	LastPublished  time.Time
	Title          string
	Subtitle       string
	Author         string
	// Banner is the banner image URL, empty when the article has none.
	Banner string
	Body   []Section
}

// Section is a headed block of rich text.
type Section struct {
	Heading string
	Content []richtext.Block
}

// Edited reports whether the article was republished after it first went out.
func (d Document) Edited() bool {
	return !d.FirstPublished.Equal(d.LastPublished)
}

// Summary is the listing and navigation view of an article.
type Summary struct {
	UID            string
	Title          string
	Subtitle       string
	Author         string
	FirstPublished time.Time
}

// Summary returns the listing projection of d.
func (d Document) Summary() Summary {
	return Summary{
		UID:            d.UID,
		Title:          d.Title,
		Subtitle:       d.Subtitle,
		Author:         d.Author,
		FirstPublished: d.FirstPublished,
	}
}

type rawData struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Author   string `json:"author"`
	Banner   *struct {
		URL string `json:"url"`
	} `json:"banner"`
	Content []struct {
		Heading string           `json:"heading"`
		Body    []richtext.Block `json:"body"`
	} `json:"content"`
}

// Normalize converts a raw document into a Document. It performs no I/O
// and returns value-equal results for the same input.
//
// Missing publication dates fall back to SentinelFirstPublished and
// SentinelLastPublished, with one exception: a document that has a first
// date but no last date gets its first date as the last date instead of
// the 12:00Z sentinel, and a last date earlier than the first is raised
// to it. LastPublished is therefore never before FirstPublished, and a
// missing last date never reads as an edit.
func Normalize(raw prismic.RawDocument) (Document, error) {
	data, err := decodeData(raw)
	if err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(data.Title) == "" {
		return Document{}, &ValidationError{UID: raw.UID, Field: "title", Reason: "is required"}
	}

	first, last, err := publicationDates(raw)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:             raw.ID,
		UID:            raw.UID,
		FirstPublished: first,
		LastPublished:  last,
		Title:          data.Title,
		Subtitle:       data.Subtitle,
		Author:         data.Author,
		Body:           make([]Section, 0, len(data.Content)),
	}
	if data.Banner != nil {
		doc.Banner = data.Banner.URL
	}

	seen := make(map[string]struct{}, len(data.Content))
	for _, sec := range data.Content {
		if _, dup := seen[sec.Heading]; dup {
			return Document{}, &ValidationError{
				UID:    raw.UID,
				Field:  "content.heading",
				Reason: fmt.Sprintf("duplicate section heading %q", sec.Heading),
			}
		}
		seen[sec.Heading] = struct{}{}
		doc.Body = append(doc.Body, Section{Heading: sec.Heading, Content: richtext.Clone(sec.Body)})
	}
	return doc, nil
}

// NormalizeSummary converts a raw document into its listing projection.
// Section bodies are not validated.
func NormalizeSummary(raw prismic.RawDocument) (Summary, error) {
	data, err := decodeData(raw)
	if err != nil {
		return Summary{}, err
	}
	if strings.TrimSpace(data.Title) == "" {
		return Summary{}, &ValidationError{UID: raw.UID, Field: "title", Reason: "is required"}
	}
	first, _, err := publicationDates(raw)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		UID:            raw.UID,
		Title:          data.Title,
		Subtitle:       data.Subtitle,
		Author:         data.Author,
		FirstPublished: first,
	}, nil
}

func decodeData(raw prismic.RawDocument) (rawData, error) {
	if strings.TrimSpace(raw.UID) == "" {
		return rawData{}, &ValidationError{UID: raw.ID, Field: "uid", Reason: "is required"}
	}
	var data rawData
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		return rawData{}, &ValidationError{UID: raw.UID, Field: "data", Reason: err.Error()}
	}
	return data, nil
}

// publicationDates parses both timestamps. A missing last date falls back
// to the first one when that is known, so the article does not read as
// edited; a missing first date uses the sentinel.
func publicationDates(raw prismic.RawDocument) (time.Time, time.Time, error) {
	first, firstOK, err := parseTimestamp(raw.FirstPublicationDate)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{UID: raw.UID, Field: "first_publication_date", Reason: err.Error()}
	}
	last, lastOK, err := parseTimestamp(raw.LastPublicationDate)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{UID: raw.UID, Field: "last_publication_date", Reason: err.Error()}
	}
	switch {
	case !firstOK && !lastOK:
		return SentinelFirstPublished, SentinelLastPublished, nil
	case !firstOK:
		return SentinelFirstPublished, last, nil
	case !lastOK:
		return first, first, nil
	}
	if last.Before(first) {
		last = first
	}
	return first, last, nil
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	time.RFC3339Nano,
}

func parseTimestamp(s *string) (time.Time, bool, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return time.Time{}, false, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, *s)
		if err == nil {
			return t.UTC(), true, nil
		}
		lastErr = err
	}
	return time.Time{}, false, lastErr
}
