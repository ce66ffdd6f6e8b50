package prismic

import (
	"encoding/json"
	"strings"
)

// RawDocument is a document exactly as the content API returns it.
// Data is decoded later by the content normalizer.
type RawDocument struct {
	ID                   string          `json:"id"`
	UID                  string          `json:"uid"`
	Type                 string          `json:"type"`
	Tags                 []string        `json:"tags,omitempty"`
	FirstPublicationDate *string         `json:"first_publication_date"`
	LastPublicationDate  *string         `json:"last_publication_date"`
	Data                 json.RawMessage `json:"data"`
}

// RawPage is one page of search results.
type RawPage struct {
	Page             int           `json:"page"`
	ResultsPerPage   int           `json:"results_per_page"`
	ResultsSize      int           `json:"results_size"`
	TotalResultsSize int           `json:"total_results_size"`
	TotalPages       int           `json:"total_pages"`
	NextPage         *string       `json:"next_page"`
	PrevPage         *string       `json:"prev_page"`
	Results          []RawDocument `json:"results"`
}

// Ordering sorts search results by a document field.
type Ordering struct {
	Field string
	Desc  bool
}

func (o Ordering) String() string {
	if o.Desc {
		return o.Field + " desc"
	}
	return o.Field
}

// FormatOrderings renders orderings in the API's bracket syntax, e.g.
// "[document.first_publication_date desc]".
func FormatOrderings(orderings []Ordering) string {
	parts := make([]string, 0, len(orderings))
	for _, o := range orderings {
		parts = append(parts, o.String())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseOrderings is the inverse of FormatOrderings. Brackets are optional.
func ParseOrderings(s string) []Ordering {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []Ordering
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		o := Ordering{Field: fields[0]}
		if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
			o.Desc = true
		}
		out = append(out, o)
	}
	return out
}

// QueryOptions are the pagination and revision parameters of a search.
type QueryOptions struct {
	PageSize  int
	Page      int
	After     string
	Orderings []Ordering
	// Ref selects a preview revision. Empty means the published master ref.
	Ref string
}

type apiRoot struct {
	Refs []apiRef `json:"refs"`
}

type apiRef struct {
	ID          string `json:"id"`
	Ref         string `json:"ref"`
	Label       string `json:"label"`
	IsMasterRef bool   `json:"isMasterRef"`
}
