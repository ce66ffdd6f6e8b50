package content

import (
	"context"
	"errors"

	"github.com/eringen/spacetraveling/prismic"
)

// ListingPage is one page of summaries in upstream order.
type ListingPage struct {
	Items []Summary
	// NextCursor is empty when there are no further pages.
	NextCursor string
}

// HasMore reports whether another page can be loaded.
func (p ListingPage) HasMore() bool { return p.NextCursor != "" }

// ErrNoCursor is returned by LoadMore when called without a cursor.
var ErrNoCursor = errors.New("no cursor to load more from")

// Paginator fetches the article listing one page at a time.
type Paginator struct {
	source       Source
	documentType string
	pageSize     int
	orderings    []prismic.Ordering
}

// NewPaginator returns a paginator over documentType. Non-positive page
// sizes are treated as 1.
func NewPaginator(src Source, documentType string, pageSize int, orderings []prismic.Ordering) *Paginator {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &Paginator{
		source:       src,
		documentType: documentType,
		pageSize:     pageSize,
		orderings:    orderings,
	}
}

// FirstPage fetches the first page. An empty ref means the published
// revision.
func (p *Paginator) FirstPage(ctx context.Context, ref string) (ListingPage, error) {
	return p.fetch(ctx, Cursor{Page: 1, Ref: ref})
}

// LoadMore fetches the page a previous NextCursor points at. Malformed
// cursors wrap prismic.ErrInvalidCursor and never reach upstream.
func (p *Paginator) LoadMore(ctx context.Context, cursor string) (ListingPage, error) {
	c, err := ParseCursor(cursor)
	if err != nil {
		return ListingPage{}, err
	}
	return p.fetch(ctx, c)
}

func (p *Paginator) fetch(ctx context.Context, c Cursor) (ListingPage, error) {
	raw, err := p.source.Query(ctx, p.documentType, prismic.QueryOptions{
		PageSize:  p.pageSize,
		Page:      c.Page,
		Orderings: p.orderings,
		Ref:       c.Ref,
	})
	if err != nil {
		return ListingPage{}, err
	}
	return toListingPage(raw, c)
}

// All follows cursors until the listing is exhausted.
func (p *Paginator) All(ctx context.Context, ref string) (*Listing, error) {
	page, err := p.FirstPage(ctx, ref)
	if err != nil {
		return nil, err
	}
	listing := NewListing(page)
	for listing.HasMore() {
		next, err := p.LoadMore(ctx, listing.NextCursor)
		if err != nil {
			return nil, err
		}
		before := len(listing.Items)
		listing.Append(next)
		if len(listing.Items) == before {
			// Upstream keeps advertising pages with nothing new on them.
			break
		}
	}
	return listing, nil
}

func toListingPage(raw prismic.RawPage, at Cursor) (ListingPage, error) {
	page := ListingPage{Items: make([]Summary, 0, len(raw.Results))}
	for _, doc := range raw.Results {
		s, err := NormalizeSummary(doc)
		if err != nil {
			return ListingPage{}, err
		}
		page.Items = append(page.Items, s)
	}
	if raw.NextPage != nil && *raw.NextPage != "" {
		page.NextCursor = Cursor{Page: at.Page + 1, Ref: at.Ref}.String()
	}
	return page, nil
}

// Listing accumulates pages for display. Items only ever grow and are
// unique by uid.
type Listing struct {
	Items      []Summary
	NextCursor string
	seen       map[string]struct{}
}

// NewListing starts an accumulator from the first page.
func NewListing(first ListingPage) *Listing {
	l := &Listing{seen: make(map[string]struct{})}
	l.Append(first)
	return l
}

// Append adds the items of page not already present and moves the cursor.
func (l *Listing) Append(page ListingPage) {
	for _, s := range page.Items {
		if _, ok := l.seen[s.UID]; ok {
			continue
		}
		l.seen[s.UID] = struct{}{}
		l.Items = append(l.Items, s)
	}
	l.NextCursor = page.NextCursor
}

// HasMore reports whether the load-more affordance should be shown.
func (l *Listing) HasMore() bool { return l.NextCursor != "" }
