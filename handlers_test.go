package spacetraveling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/prismic/prismictest"
)

var (
	firstDay  = time.Date(2021, time.March, 15, 19, 25, 0, 0, time.UTC)
	secondDay = time.Date(2021, time.March, 20, 10, 0, 0, 0, time.UTC)
	thirdDay  = time.Date(2021, time.March, 25, 8, 30, 0, 0, time.UTC)
)

func samplePosts() []prismictest.Doc {
	intro := prismictest.Section{Heading: "Introdução", Paragraphs: []string{"Lorem ipsum dolor sit amet."}}
	return []prismictest.Doc{
		prismictest.Post("como-utilizar-hooks", "Como utilizar Hooks", firstDay, intro),
		prismictest.Post("criando-um-app-cra-do-zero", "Criando um app CRA do zero", secondDay, intro),
		prismictest.Post("mapas-com-react", "Mapas com React", thirdDay, intro),
	}
}

func newTestApp(t *testing.T, src ContentSource, endpoint string, mutate ...func(*SiteConfig)) *App {
	t.Helper()
	cfg := SiteConfig{
		URL:           "https://blog.example.com",
		Timezone:      "UTC",
		SessionSecret: "test-session-secret",
		Prismic:       PrismicConfig{Endpoint: endpoint, AccessToken: prismictest.Token},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	var opts []Option
	if src != nil {
		opts = append(opts, WithSource(src))
	}
	a := New(cfg, opts...)
	require.NoError(t, a.Init())
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func serve(a *App, method, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	return doc
}

func TestHomeShowsFirstPageWithLoadMore(t *testing.T) {
	srv := prismictest.New(t, samplePosts()[:2]...)
	a := newTestApp(t, nil, srv.Endpoint())

	rec := serve(a, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := parseHTML(t, rec)

	assert.Equal(t, "Home | spacetraveling", doc.Find("title").Text())
	posts := doc.Find("a.post")
	require.Equal(t, 1, posts.Length())
	assert.Equal(t, "/post/criando-um-app-cra-do-zero", posts.AttrOr("href", ""))
	assert.Equal(t, "20 mar 2021", posts.Find("time").Text())
	assert.Equal(t, "Carregar mais posts", doc.Find("#load-more").Text())

	next := doc.Find("#load-more").AttrOr("data-next", "")
	require.True(t, strings.HasPrefix(next, "/api/posts?cursor="), next)
	assert.NotContains(t, next, prismictest.Token)
	assert.NotContains(t, next, "http")

	rec = serve(a, http.MethodGet, next)
	require.Equal(t, http.StatusOK, rec.Code)
	var page listingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "como-utilizar-hooks", page.Results[0].UID)
	assert.Equal(t, "15 mar 2021", page.Results[0].DisplayDate)
	assert.Equal(t, "Como utilizar Hooks", page.Results[0].Data.Title)
	assert.Nil(t, page.NextPage)
}

func TestHomeWithoutMorePagesHidesLoadMore(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint(), func(c *SiteConfig) { c.Listing.PageSize = 10 })

	doc := parseHTML(t, serve(a, http.MethodGet, "/"))
	assert.Equal(t, 3, doc.Find("a.post").Length())
	assert.Zero(t, doc.Find("#load-more").Length())
}

func TestHomeIsServedFromCache(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint())

	first := serve(a, http.MethodGet, "/")
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))
	searches := srv.Searches()

	second := serve(a, http.MethodGet, "/")
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, searches, srv.Searches())
	assert.Contains(t, second.Header().Get("Cache-Control"), "s-maxage=86400")
}

func TestStaleHomeIsServedWhileRegenerating(t *testing.T) {
	posts := samplePosts()
	srv := prismictest.New(t, posts...)
	a := newTestApp(t, nil, srv.Endpoint())

	require.Contains(t, serve(a, http.MethodGet, "/").Body.String(), "Mapas com React")

	renamed := prismictest.Post("mapas-com-react", "Mapas com Leaflet", thirdDay)
	srv.SetDocuments(posts[0], posts[1], renamed)
	a.Cache.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	stale := serve(a, http.MethodGet, "/")
	assert.Equal(t, "stale", stale.Header().Get("X-Cache"))
	assert.Contains(t, stale.Body.String(), "Mapas com React")

	a.Cache.Wait()
	fresh := serve(a, http.MethodGet, "/")
	assert.Equal(t, "hit", fresh.Header().Get("X-Cache"))
	assert.Contains(t, fresh.Body.String(), "Mapas com Leaflet")
}

func TestFailedRegenerationKeepsStalePage(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint())

	original := serve(a, http.MethodGet, "/").Body.String()
	srv.FailWith(http.StatusInternalServerError)
	a.Cache.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	rec := serve(a, http.MethodGet, "/")
	a.Cache.Wait()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, original, rec.Body.String())

	rec = serve(a, http.MethodGet, "/")
	assert.Equal(t, "stale", rec.Header().Get("X-Cache"))
	assert.Equal(t, original, rec.Body.String())
	a.Cache.Wait()
}

func TestHomeUpstreamFailureRendersErrorPage(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	srv.FailWith(http.StatusBadGateway)
	a := newTestApp(t, nil, srv.Endpoint())

	rec := serve(a, http.MethodGet, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "503", parseHTML(t, rec).Find("main h1").Text())
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
}

func TestArticlePage(t *testing.T) {
	posts := samplePosts()
	edited := secondDay.Add(72*time.Hour + 4*time.Minute)
	posts[1].Last = &edited
	srv := prismictest.New(t, posts...)
	a := newTestApp(t, nil, srv.Endpoint())
	require.NoError(t, a.Prerender(context.Background()))

	rec := serve(a, http.MethodGet, "/post/criando-um-app-cra-do-zero")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	doc := parseHTML(t, rec)

	assert.Equal(t, "Criando um app CRA do zero | spacetraveling", doc.Find("title").Text())
	assert.Equal(t, "Criando um app CRA do zero", doc.Find("article h1").Text())
	assert.Equal(t, "https://images.example.com/criando-um-app-cra-do-zero.png", doc.Find("img.banner").AttrOr("src", ""))
	assert.Equal(t, "20 mar 2021", doc.Find("article .info time").Text())
	assert.Contains(t, doc.Find("article .info").Text(), "1 min")
	assert.Equal(t, "* editado em 23 mar 2021, às 10:04", doc.Find(".edited").Text())
	assert.Equal(t, "Introdução", doc.Find(".section h2").Text())
	assert.Equal(t, "<p>Lorem ipsum dolor sit amet.</p>", mustHTML(t, doc.Find(".section-body")))

	assert.Equal(t, "Como utilizar Hooks", doc.Find(".nav-previous span").Text())
	assert.Equal(t, "/post/como-utilizar-hooks", doc.Find(".nav-previous a").AttrOr("href", ""))
	assert.Equal(t, "Post anterior", doc.Find(".nav-previous a").Text())
	assert.Equal(t, "Mapas com React", doc.Find(".nav-next span").Text())
	assert.Equal(t, "Próximo post", doc.Find(".nav-next a").Text())

	var ld map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc.Find(`script[type="application/ld+json"]`).Text()), &ld))
	assert.Equal(t, "BlogPosting", ld["@type"])
	assert.Equal(t, "https://blog.example.com/post/criando-um-app-cra-do-zero", ld["url"])
}

func TestArticleBoundaries(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint())
	require.NoError(t, a.Prerender(context.Background()))

	oldest := parseHTML(t, serve(a, http.MethodGet, "/post/como-utilizar-hooks"))
	assert.Zero(t, oldest.Find(".nav-previous a").Length())
	assert.Equal(t, 1, oldest.Find(".nav-next a").Length())
	assert.Zero(t, oldest.Find(".edited").Length())

	newest := parseHTML(t, serve(a, http.MethodGet, "/post/mapas-com-react"))
	assert.Equal(t, 1, newest.Find(".nav-previous a").Length())
	assert.Zero(t, newest.Find(".nav-next a").Length())
}

func TestCommentsWidget(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint(), func(c *SiteConfig) { c.Comments.Repo = "octo/blog-comments" })
	require.NoError(t, a.Prerender(context.Background()))

	doc := parseHTML(t, serve(a, http.MethodGet, "/post/mapas-com-react"))
	script := doc.Find(".comments script")
	require.Equal(t, 1, script.Length())
	assert.Equal(t, "octo/blog-comments", script.AttrOr("repo", ""))
	assert.Equal(t, "pathname", script.AttrOr("issue-term", ""))
}

// gatedSource holds article lookups until released.
type gatedSource struct {
	*prismic.Client
	gate chan struct{}
}

func (g gatedSource) GetByUID(ctx context.Context, documentType, uid, ref string) (prismic.RawDocument, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return prismic.RawDocument{}, ctx.Err()
	}
	return g.Client.GetByUID(ctx, documentType, uid, ref)
}

func newGatedApp(t *testing.T, docs ...prismictest.Doc) (*App, chan struct{}) {
	t.Helper()
	srv := prismictest.New(t, docs...)
	client, err := prismic.New(prismic.Config{Endpoint: srv.Endpoint(), AccessToken: prismictest.Token}, nil)
	require.NoError(t, err)
	gate := make(chan struct{})
	return newTestApp(t, gatedSource{Client: client, gate: gate}, srv.Endpoint()), gate
}

func waitFallback(t *testing.T, a *App, uid string) {
	t.Helper()
	a.fallbacks.mu.Lock()
	d := a.fallbacks.pending[uid]
	a.fallbacks.mu.Unlock()
	require.NotNil(t, d, "no fallback running for %s", uid)
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("fallback for %s did not settle", uid)
	}
}

func TestUnknownArticleServesFallbackThenArticle(t *testing.T) {
	a, gate := newGatedApp(t, samplePosts()...)

	rec := serve(a, http.MethodGet, "/post/mapas-com-react")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := parseHTML(t, rec)
	assert.Equal(t, "Carregando...", doc.Find(".loading").Text())
	assert.Equal(t, "1", doc.Find(`meta[http-equiv="refresh"]`).AttrOr("content", ""))
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))

	close(gate)
	require.Eventually(t, func() bool { return a.fallbacks.len() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, a.paths.has("mapas-com-react"))
	assert.True(t, a.Cache.Peek(context.Background(), "/post/mapas-com-react"))

	rec = serve(a, http.MethodGet, "/post/mapas-com-react")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, "Mapas com React", parseHTML(t, rec).Find("article h1").Text())
}

func TestFallbacksDrainWithoutRepeatRequests(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint(), func(c *SiteConfig) { c.FallbackTimeout = 50 * time.Millisecond })

	for i := 0; i < 50; i++ {
		rec := serve(a, http.MethodGet, "/post/bogus-"+strconv.Itoa(i))
		assert.Contains(t, []int{http.StatusOK, http.StatusNotFound}, rec.Code)
	}
	require.Eventually(t, func() bool { return a.fallbacks.len() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, a.paths.len())
	assert.Empty(t, a.Cache.Keys())
}

func TestMissingArticleIsRememberedBriefly(t *testing.T) {
	a, gate := newGatedApp(t, samplePosts()...)
	a.fallbacks.retain = time.Hour

	serve(a, http.MethodGet, "/post/nao-existe")
	close(gate)
	waitFallback(t, a, "nao-existe")

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNotFound, serve(a, http.MethodGet, "/post/nao-existe").Code)
	}
	assert.Equal(t, 1, a.fallbacks.len())
}

func TestFallbacksAreCapped(t *testing.T) {
	a, gate := newGatedApp(t, samplePosts()...)
	defer close(gate)
	a.fallbacks.max = 2

	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/post/one").Code)
	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/post/two").Code)
	rec := serve(a, http.MethodGet, "/post/three")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/post/one").Code, "running fallbacks still answer")
}

func TestUnknownArticleThatNeverResolvesIs404(t *testing.T) {
	a, gate := newGatedApp(t, samplePosts()...)

	rec := serve(a, http.MethodGet, "/post/nao-existe")
	assert.Equal(t, http.StatusOK, rec.Code)
	close(gate)
	waitFallback(t, a, "nao-existe")

	rec = serve(a, http.MethodGet, "/post/nao-existe")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "404", parseHTML(t, rec).Find("main h1").Text())
	assert.False(t, a.Cache.Peek(context.Background(), "/post/nao-existe"))
}

func TestDeletedArticleIsEvicted(t *testing.T) {
	posts := samplePosts()
	srv := prismictest.New(t, posts...)
	a := newTestApp(t, nil, srv.Endpoint())
	require.NoError(t, a.Prerender(context.Background()))

	srv.SetDocuments(posts[0], posts[1])
	a.Cache.now = func() time.Time { return time.Now().Add(time.Hour) }

	rec := serve(a, http.MethodGet, "/post/mapas-com-react")
	assert.Equal(t, "stale", rec.Header().Get("X-Cache"))
	a.Cache.Wait()
	assert.False(t, a.Cache.Peek(context.Background(), "/post/mapas-com-react"))

	rec = serve(a, http.MethodGet, "/post/mapas-com-react")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, a.paths.has("mapas-com-react"))
}

func TestPreviewMode(t *testing.T) {
	posts := samplePosts()
	srv := prismictest.New(t, posts...)
	draft := prismictest.Post("mapas-com-react", "Mapas com React (rascunho)", thirdDay)
	srv.AddPreview("preview-ref", draft)
	a := newTestApp(t, nil, srv.Endpoint())
	require.NoError(t, a.Prerender(context.Background()))

	rec := serve(a, http.MethodGet, "/api/preview?token=preview-ref&documentId=id-mapas-com-react")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/post/mapas-com-react", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = serve(a, http.MethodGet, "/post/mapas-com-react", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bypass", rec.Header().Get("X-Cache"))
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
	doc := parseHTML(t, rec)
	assert.Equal(t, "Mapas com React (rascunho)", doc.Find("article h1").Text())
	assert.Equal(t, "Sair do modo Preview", doc.Find(".preview-banner a").Text())

	// Readers without the cookie still get the published page.
	public := parseHTML(t, serve(a, http.MethodGet, "/post/mapas-com-react"))
	assert.Equal(t, "Mapas com React", public.Find("article h1").Text())
	assert.Zero(t, public.Find(".preview-banner").Length())

	rec = serve(a, http.MethodGet, "/", cookies...)
	assert.Equal(t, "bypass", rec.Header().Get("X-Cache"))

	rec = serve(a, http.MethodGet, "/api/exit-preview", cookies...)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == previewSession && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "preview cookie should be expired")
}

func TestPreviewRequiresToken(t *testing.T) {
	srv := prismictest.New(t)
	a := newTestApp(t, nil, srv.Endpoint())

	rec := serve(a, http.MethodGet, "/api/preview")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewWithUnknownTokenIsRejected(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint())

	rec := serve(a, http.MethodGet, "/api/preview?token=bogus&documentId=id-mapas-com-react")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoadMoreRejectsBadCursors(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint())

	assert.Equal(t, http.StatusBadRequest, serve(a, http.MethodGet, "/api/posts").Code)
	assert.Equal(t, http.StatusBadRequest,
		serve(a, http.MethodGet, "/api/posts?cursor=http%3A%2F%2F169.254.169.254%2Flatest").Code)
	assert.Zero(t, srv.Searches())
}

func TestLoadMoreCannotQueryOtherDocumentTypes(t *testing.T) {
	memo := prismictest.Post("internal-memo", "Secret memo", secondDay)
	memo.Type = "internal"
	srv := prismictest.New(t, append(samplePosts(), memo)...)
	a := newTestApp(t, nil, srv.Endpoint())

	foreign := srv.Endpoint() + "/documents/search?ref=" + prismictest.MasterRef +
		`&q=[[at(document.type,"internal")]]`
	for _, cursor := range []string{foreign, `page=2&q=[[at(document.type,"internal")]]`} {
		rec := serve(a, http.MethodGet, "/api/posts?cursor="+url.QueryEscape(cursor))
		assert.Equal(t, http.StatusBadRequest, rec.Code, cursor)
		assert.NotContains(t, rec.Body.String(), "Secret memo", cursor)
	}
	assert.Zero(t, srv.Searches())
}

func TestLoadMoreIsRateLimited(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint(), func(c *SiteConfig) { c.LoadMoreLimit = 1 })

	serve(a, http.MethodGet, "/api/posts")
	rec := serve(a, http.MethodGet, "/api/posts")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFeedAndSitemap(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint())

	rec := serve(a, http.MethodGet, "/feed.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Equal(t, 3, strings.Count(body, "<item>"))
	assert.Contains(t, body, "<link>https://blog.example.com/post/mapas-com-react</link>")

	rec = serve(a, http.MethodGet, "/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Equal(t, 4, strings.Count(body, "<url>"))
	assert.Contains(t, body, "<lastmod>2021-03-15</lastmod>")
}

func TestRobotsHealthAndMetrics(t *testing.T) {
	srv := prismictest.New(t, samplePosts()...)
	a := newTestApp(t, nil, srv.Endpoint())

	rec := serve(a, http.MethodGet, "/robots.txt")
	assert.Contains(t, rec.Body.String(), "Sitemap: https://blog.example.com/sitemap.xml")

	serve(a, http.MethodGet, "/")
	rec = serve(a, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["cached"])
	assert.EqualValues(t, 0, health["fallbacks_pending"])

	rec = serve(a, http.MethodGet, "/metrics")
	assert.Contains(t, rec.Body.String(), `spacetraveling_page_cache_lookups_total{result="miss"} 1`)
}

func TestEmbeddedAssetsAreServed(t *testing.T) {
	srv := prismictest.New(t)
	a := newTestApp(t, nil, srv.Endpoint())

	for _, path := range []string{"/public/styles.css", "/public/loadmore.js", "/public/logo.svg"} {
		rec := serve(a, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "public, max-age=31536000, immutable", rec.Header().Get("Cache-Control"), path)
	}
}

func TestUnknownRouteRendersNotFound(t *testing.T) {
	srv := prismictest.New(t)
	a := newTestApp(t, nil, srv.Endpoint())

	rec := serve(a, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Página não encontrada.", parseHTML(t, rec).Find("main p").Text())
}

func mustHTML(t *testing.T, s *goquery.Selection) string {
	t.Helper()
	h, err := s.Html()
	require.NoError(t, err)
	return h
}
