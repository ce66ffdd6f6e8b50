// Package prismictest runs an in-process fake of the content API for tests.
// It understands the subset of the search API the prismic client uses:
// the at() predicate on document.type, document.id and my.<type>.uid,
// publication-date orderings, after, page and pageSize.
package prismictest

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	// Token is the only access token the server accepts.
	Token = "test-token"
	// MasterRef is the published revision.
	MasterRef = "master-ref"
	// DateLayout is the timestamp format the API uses.
	DateLayout = "2006-01-02T15:04:05-0700"
)

// Doc is a stored document. Nil timestamps are serialized as null.
type Doc struct {
	ID    string
	UID   string
	Type  string
	First *time.Time
	Last  *time.Time
	Data  map[string]any
}

// Server is a fake content API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	docs     []Doc
	previews map[string][]Doc
	failWith int

	searches atomic.Int64
}

// New starts a server holding docs and closes it when the test ends.
func New(t testing.TB, docs ...Doc) *Server {
	t.Helper()
	s := &Server{docs: docs, previews: map[string][]Doc{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", s.handleRoot)
	mux.HandleFunc("/api/v2/documents/search", s.handleSearch)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the API root URL to configure clients with.
func (s *Server) Endpoint() string { return s.URL + "/api/v2" }

// SetDocuments replaces the published documents.
func (s *Server) SetDocuments(docs ...Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
}

// AddPreview registers a preview ref whose documents shadow published ones
// with the same id.
func (s *Server) AddPreview(ref string, docs ...Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[ref] = docs
}

// FailWith makes every following request answer with status. Zero restores
// normal behavior.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = status
}

// Searches counts search requests served, failed or not.
func (s *Server) Searches() int64 { return s.searches.Load() }

// Post builds a "posts" document with one paragraph per section body.
func Post(uid, title string, first time.Time, sections ...Section) Doc {
	content := make([]any, 0, len(sections))
	for _, sec := range sections {
		body := make([]any, 0, len(sec.Paragraphs))
		for _, p := range sec.Paragraphs {
			body = append(body, map[string]any{"type": "paragraph", "text": p, "spans": []any{}})
		}
		content = append(content, map[string]any{"heading": sec.Heading, "body": body})
	}
	f := first
	return Doc{
		ID:    "id-" + uid,
		UID:   uid,
		Type:  "posts",
		First: &f,
		Last:  &f,
		Data: map[string]any{
			"title":    title,
			"subtitle": title + " subtitle",
			"author":   "Joseph Oliveira",
			"banner":   map[string]any{"url": "https://images.example.com/" + uid + ".png"},
			"content":  content,
		},
	}
}

// Section is a heading with plain paragraphs.
type Section struct {
	Heading    string
	Paragraphs []string
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	writeJSON(w, map[string]any{
		"refs": []map[string]any{
			{"id": "master", "ref": MasterRef, "label": "Master", "isMasterRef": true},
		},
	})
}

var atPredicate = regexp.MustCompile(`at\(([^,]+),"((?:[^"\\]|\\.)*)"\)`)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.searches.Add(1)
	if !s.admit(w, r) {
		return
	}
	q := r.URL.Query()

	docs, ok := s.revision(q.Get("ref"))
	if !ok {
		http.Error(w, `{"message":"unknown ref"}`, http.StatusBadRequest)
		return
	}

	for _, m := range atPredicate.FindAllStringSubmatch(q.Get("q"), -1) {
		field, value := m[1], m[2]
		docs = filter(docs, func(d Doc) bool {
			switch {
			case field == "document.type":
				return d.Type == value
			case field == "document.id":
				return d.ID == value
			case strings.HasPrefix(field, "my.") && strings.HasSuffix(field, ".uid"):
				return d.Type == strings.TrimSuffix(strings.TrimPrefix(field, "my."), ".uid") && d.UID == value
			}
			return false
		})
	}

	if o := q.Get("orderings"); o != "" {
		sortDocs(docs, o)
	}

	if after := q.Get("after"); after != "" {
		idx := -1
		for i, d := range docs {
			if d.ID == after {
				idx = i
				break
			}
		}
		if idx < 0 {
			http.Error(w, `{"message":"unknown after id"}`, http.StatusBadRequest)
			return
		}
		docs = docs[idx+1:]
	}

	pageSize := atoiDefault(q.Get("pageSize"), 20)
	page := atoiDefault(q.Get("page"), 1)
	total := len(docs)
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	results := make([]map[string]any, 0, end-start)
	for _, d := range docs[start:end] {
		results = append(results, encodeDoc(d))
	}

	var next, prev any
	if page < totalPages {
		next = s.pageURL(r, page+1)
	}
	if page > 1 {
		prev = s.pageURL(r, page-1)
	}
	writeJSON(w, map[string]any{
		"page":               page,
		"results_per_page":   pageSize,
		"results_size":       len(results),
		"total_results_size": total,
		"total_pages":        totalPages,
		"next_page":          next,
		"prev_page":          prev,
		"results":            results,
	})
}

func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	status := s.failWith
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, `{"message":"injected failure"}`, status)
		return false
	}
	if r.URL.Query().Get("access_token") != Token {
		http.Error(w, `{"message":"invalid access token"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) revision(ref string) ([]Doc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Doc(nil), s.docs...)
	if ref == MasterRef {
		return out, true
	}
	preview, ok := s.previews[ref]
	if !ok {
		return nil, false
	}
	for _, p := range preview {
		replaced := false
		for i := range out {
			if out[i].ID == p.ID {
				out[i], replaced = p, true
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out, true
}

func (s *Server) pageURL(r *http.Request, page int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}

func sortDocs(docs []Doc, orderings string) {
	fields := strings.Fields(strings.Trim(orderings, "[]"))
	if len(fields) == 0 {
		return
	}
	field := fields[0]
	desc := len(fields) > 1 && fields[1] == "desc"
	key := func(d Doc) time.Time {
		var t *time.Time
		switch field {
		case "document.first_publication_date":
			t = d.First
		case "document.last_publication_date":
			t = d.Last
		}
		if t == nil {
			return time.Time{}
		}
		return *t
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if desc {
			return key(docs[i]).After(key(docs[j]))
		}
		return key(docs[i]).Before(key(docs[j]))
	})
}

func encodeDoc(d Doc) map[string]any {
	stamp := func(t *time.Time) any {
		if t == nil {
			return nil
		}
		return t.UTC().Format(DateLayout)
	}
	return map[string]any{
		"id":                     d.ID,
		"uid":                    d.UID,
		"type":                   d.Type,
		"first_publication_date": stamp(d.First),
		"last_publication_date":  stamp(d.Last),
		"data":                   d.Data,
	}
}

func filter(docs []Doc, keep func(Doc) bool) []Doc {
	out := docs[:0]
	for _, d := range docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf(`{"message":%q}`, err.Error()), http.StatusInternalServerError)
	}
}
