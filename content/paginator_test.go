package content_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/prismic/prismictest"
)

var newestFirst = []prismic.Ordering{{Field: "document.first_publication_date", Desc: true}}

func day(n int) time.Time {
	return time.Date(2021, time.March, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func posts(n int) []prismictest.Doc {
	docs := make([]prismictest.Doc, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, prismictest.Post(fmt.Sprintf("post-%02d", i), fmt.Sprintf("Post %d", i), day(i),
			prismictest.Section{Heading: "Intro", Paragraphs: []string{"lorem ipsum dolor"}}))
	}
	return docs
}

func newSource(t *testing.T, srv *prismictest.Server) *prismic.Client {
	t.Helper()
	c, err := prismic.New(prismic.Config{Endpoint: srv.Endpoint(), AccessToken: prismictest.Token}, nil)
	require.NoError(t, err)
	return c
}

func TestPaginationIsCompleteAndOrdered(t *testing.T) {
	for _, tc := range []struct{ docs, pageSize int }{{0, 1}, {1, 1}, {5, 1}, {5, 2}, {7, 3}, {6, 3}, {4, 10}} {
		t.Run(fmt.Sprintf("%d docs by %d", tc.docs, tc.pageSize), func(t *testing.T) {
			srv := prismictest.New(t, posts(tc.docs)...)
			p := content.NewPaginator(newSource(t, srv), "posts", tc.pageSize, newestFirst)

			listing, err := p.All(context.Background(), "")
			require.NoError(t, err)
			require.Len(t, listing.Items, tc.docs)
			for i, item := range listing.Items {
				assert.Equal(t, fmt.Sprintf("post-%02d", tc.docs-1-i), item.UID)
			}
			assert.False(t, listing.HasMore())
		})
	}
}

func TestLoadMoreAffordance(t *testing.T) {
	srv := prismictest.New(t, posts(2)...)
	p := content.NewPaginator(newSource(t, srv), "posts", 1, newestFirst)
	ctx := context.Background()

	first, err := p.FirstPage(ctx, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	require.True(t, first.HasMore())
	assert.NotContains(t, first.NextCursor, prismictest.Token)

	listing := content.NewListing(first)
	assert.True(t, listing.HasMore())

	next, err := p.LoadMore(ctx, listing.NextCursor)
	require.NoError(t, err)
	listing.Append(next)
	assert.Len(t, listing.Items, 2)
	assert.False(t, listing.HasMore())
}

func TestListingSkipsDuplicates(t *testing.T) {
	a := content.Summary{UID: "a"}
	b := content.Summary{UID: "b"}
	l := content.NewListing(content.ListingPage{Items: []content.Summary{a}, NextCursor: "c1"})
	l.Append(content.ListingPage{Items: []content.Summary{a, b}, NextCursor: ""})
	assert.Equal(t, []content.Summary{a, b}, l.Items)
	assert.False(t, l.HasMore())
}

func TestLoadMoreWithoutCursor(t *testing.T) {
	srv := prismictest.New(t)
	p := content.NewPaginator(newSource(t, srv), "posts", 1, nil)
	_, err := p.LoadMore(context.Background(), "")
	assert.ErrorIs(t, err, content.ErrNoCursor)
}

func TestLoadMoreSurfacesRetrievalErrors(t *testing.T) {
	srv := prismictest.New(t, posts(3)...)
	p := content.NewPaginator(newSource(t, srv), "posts", 1, newestFirst)
	first, err := p.FirstPage(context.Background(), "")
	require.NoError(t, err)

	srv.FailWith(http.StatusInternalServerError)
	_, err = p.LoadMore(context.Background(), first.NextCursor)
	var re *prismic.RetrievalError
	assert.ErrorAs(t, err, &re)
}

func TestFirstPageRejectsInvalidDocuments(t *testing.T) {
	bad := prismictest.Post("bad", "", day(1))
	srv := prismictest.New(t, bad)
	p := content.NewPaginator(newSource(t, srv), "posts", 5, nil)
	_, err := p.FirstPage(context.Background(), "")
	var ve *content.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCursorRoundTrip(t *testing.T) {
	for _, c := range []content.Cursor{{Page: 2}, {Page: 17, Ref: "preview-ref~1"}} {
		got, err := content.ParseCursor(c.String())
		require.NoError(t, err, c.String())
		assert.Equal(t, c, got)
	}
}

func TestParseCursorRejectsForeignValues(t *testing.T) {
	for _, cursor := range []string{
		"page=1",
		"page=0",
		"page=two",
		"page=2&ref=",
		"page=2&page=3",
		`page=2&q=[[at(document.type,"internal")]]`,
		"page=2&orderings=[my.posts.title]&pageSize=100",
		"http://127.0.0.1/api/v2/documents/search?ref=master-ref&page=2",
		"%zz",
	} {
		_, err := content.ParseCursor(cursor)
		require.Error(t, err, cursor)
		assert.ErrorIs(t, err, prismic.ErrInvalidCursor, cursor)
		var re *prismic.RetrievalError
		assert.ErrorAs(t, err, &re, cursor)
	}
}

func TestLoadMoreOnlyQueriesTheListedType(t *testing.T) {
	memo := prismictest.Post("internal-memo", "Secret memo", day(9))
	memo.Type = "internal"
	srv := prismictest.New(t, append(posts(3), memo)...)
	p := content.NewPaginator(newSource(t, srv), "posts", 1, newestFirst)
	ctx := context.Background()

	foreign := srv.Endpoint() + `/documents/search?ref=` + prismictest.MasterRef + `&q=[[at(document.type,"internal")]]`
	before := srv.Searches()
	_, err := p.LoadMore(ctx, foreign)
	assert.ErrorIs(t, err, prismic.ErrInvalidCursor)
	assert.Equal(t, before, srv.Searches())

	listing, err := p.All(ctx, "")
	require.NoError(t, err)
	require.Len(t, listing.Items, 3)
	for _, item := range listing.Items {
		assert.NotEqual(t, "internal-memo", item.UID)
	}
}
