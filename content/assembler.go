package content

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/eringen/spacetraveling/prismic"
)

// DefaultNavigationField orders articles for previous/next navigation.
const DefaultNavigationField = "document.last_publication_date"

// Navigation links an article to its chronological neighbours.
type Navigation struct {
	// Previous is the next older article, nil for the oldest.
	Previous *Summary
	// Next is the next newer article, nil for the newest.
	Next *Summary
}

// Article is everything the article page renders.
type Article struct {
	Document       Document
	Navigation     Navigation
	ReadingMinutes int
}

// Assembler builds full article pages.
type Assembler struct {
	source          Source
	documentType    string
	navigationField string
}

// NewAssembler returns an assembler. An empty navigationField uses
// DefaultNavigationField.
func NewAssembler(src Source, documentType, navigationField string) *Assembler {
	if navigationField == "" {
		navigationField = DefaultNavigationField
	}
	return &Assembler{source: src, documentType: documentType, navigationField: navigationField}
}

// Assemble fetches the article identified by uid and its neighbours. The
// sibling queries need the article's upstream id, so they start once the
// main document is in and run concurrently. No partial result is returned.
func (a *Assembler) Assemble(ctx context.Context, uid, ref string) (Article, error) {
	raw, err := a.source.GetByUID(ctx, a.documentType, uid, ref)
	if err != nil {
		return Article{}, err
	}
	doc, err := Normalize(raw)
	if err != nil {
		return Article{}, err
	}

	var nav Navigation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := a.sibling(gctx, raw.ID, true, ref)
		nav.Previous = s
		return err
	})
	g.Go(func() error {
		s, err := a.sibling(gctx, raw.ID, false, ref)
		nav.Next = s
		return err
	})
	if err := g.Wait(); err != nil {
		return Article{}, err
	}

	return Article{
		Document:       doc,
		Navigation:     nav,
		ReadingMinutes: ReadingMinutes(doc),
	}, nil
}

// sibling returns the first document after anchorID in the given direction.
// Descending order after the anchor yields the previous (older) article.
func (a *Assembler) sibling(ctx context.Context, anchorID string, desc bool, ref string) (*Summary, error) {
	page, err := a.source.Query(ctx, a.documentType, prismic.QueryOptions{
		PageSize:  1,
		After:     anchorID,
		Orderings: []prismic.Ordering{{Field: a.navigationField, Desc: desc}},
		Ref:       ref,
	})
	if err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	s, err := NormalizeSummary(page.Results[0])
	if err != nil {
		return nil, err
	}
	return &s, nil
}
