package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/logger"
	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/views"
)

const (
	homeKey       = "/"
	feedKey       = "/feed.xml"
	sitemapKey    = "/sitemap.xml"
	noStore       = "private, no-store"
	fallbackRetry = 1
)

func sharedCache(ttl time.Duration) string {
	return "public, s-maxage=" + strconv.Itoa(int(ttl.Seconds())) + ", stale-while-revalidate"
}

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	if ref := previewRef(c); ref != "" {
		a.Metrics.CacheLookups.WithLabelValues(string(StateBypass)).Inc()
		page, err := a.renderHome(ctx, ref)
		if err != nil {
			return a.contentError(err)
		}
		return writePage(c, page, StateBypass, noStore)
	}

	ttl := a.Config.Revalidate.Listing
	page, state, err := a.Cache.Get(ctx, homeKey, ttl, a.homeRenderer())
	if err != nil {
		return a.contentError(err)
	}
	return writePage(c, page, state, sharedCache(ttl))
}

func (a *App) handlePost(c echo.Context) error {
	ctx := c.Request().Context()
	uid := c.Param("slug")
	if uid == "" {
		return echo.ErrNotFound
	}

	if ref := previewRef(c); ref != "" {
		a.Metrics.CacheLookups.WithLabelValues(string(StateBypass)).Inc()
		page, err := a.renderArticle(ctx, uid, ref)
		if err != nil {
			return a.contentError(err)
		}
		return writePage(c, page, StateBypass, noStore)
	}

	key := PostPath(uid)
	ttl := a.Config.Revalidate.Article
	if a.paths.has(uid) || a.Cache.Peek(ctx, key) {
		page, state, err := a.Cache.Get(ctx, key, ttl, a.articleRenderer(uid))
		if err != nil {
			if errors.Is(err, prismic.ErrNotFound) {
				a.paths.remove(uid)
			}
			return a.contentError(err)
		}
		return writePage(c, page, state, sharedCache(ttl))
	}

	return a.serveFallback(c, uid, ttl)
}

// serveFallback handles a uid outside the known set: the first request
// starts a background resolution and gets a placeholder, later requests
// get the article once it is in, or a 404 if it never resolves.
func (a *App) serveFallback(c echo.Context, uid string, ttl time.Duration) error {
	ctx := c.Request().Context()
	d, err := a.fallbacks.start(a.Assembler, uid)
	if err != nil {
		a.Logger.Warn("fallback refused", logger.String("uid", uid), logger.Error(err))
		c.Response().Header().Set("Retry-After", "1")
		return &echo.HTTPError{Code: http.StatusServiceUnavailable, Message: http.StatusText(http.StatusServiceUnavailable), Internal: err}
	}

	switch d.State() {
	case content.Pending:
		v := views.FallbackView{Page: a.page("Carregando...", "post/"+uid, "article", false)}
		v.Meta.Refresh = fallbackRetry
		c.Response().Header().Set("Cache-Control", noStore)
		return Render(c, a.Views.Fallback(v))

	case content.NotFound:
		_, err := d.Wait(ctx)
		a.Metrics.Fallbacks.WithLabelValues(content.NotFound.String()).Inc()
		if err != nil && !errors.Is(err, prismic.ErrNotFound) {
			a.Logger.Warn("fallback resolution failed",
				logger.String("uid", uid), logger.Error(err))
		}
		return echo.ErrNotFound
	}

	// Ready but not yet handed to the cache by the tracker.
	article, err := d.Wait(ctx)
	if err != nil {
		return a.contentError(err)
	}
	a.Metrics.Fallbacks.WithLabelValues(content.Ready.String()).Inc()
	page, err := a.storeResolved(ctx, uid, article)
	if err != nil {
		return err
	}
	return writePage(c, page, StateMiss, sharedCache(ttl))
}

// storeResolved renders an article found through a fallback, caches it
// and adds it to the known set.
func (a *App) storeResolved(ctx context.Context, uid string, article content.Article) (Page, error) {
	page, err := a.renderAssembled(ctx, article, false)
	if err != nil {
		return Page{}, err
	}
	a.Cache.Put(ctx, PostPath(uid), a.Config.Revalidate.Article, a.articleRenderer(uid), page)
	a.paths.add(uid)
	return page, nil
}

// listingResponse is the JSON shape of the listing fetch endpoint.
type listingResponse struct {
	Results  []listingItem `json:"results"`
	NextPage *string       `json:"next_page"`
}

type listingItem struct {
	UID                  string      `json:"uid"`
	FirstPublicationDate string      `json:"first_publication_date"`
	DisplayDate          string      `json:"display_date"`
	Data                 listingData `json:"data"`
}

type listingData struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Author   string `json:"author"`
}

func (a *App) handleLoadMore(c echo.Context) error {
	if !a.limiter.Allow(c.RealIP()) {
		a.Metrics.LoadMore.WithLabelValues("limited").Inc()
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
	}

	page, err := a.Paginator.LoadMore(c.Request().Context(), c.QueryParam("cursor"))
	if err != nil {
		a.Metrics.LoadMore.WithLabelValues("error").Inc()
		status := statusFor(err)
		if status >= 500 {
			a.Logger.Warn("load more failed", logger.Error(err))
		}
		return c.JSON(status, map[string]string{"error": http.StatusText(status)})
	}
	a.Metrics.LoadMore.WithLabelValues("ok").Inc()

	resp := listingResponse{Results: make([]listingItem, 0, len(page.Items))}
	for _, s := range page.Items {
		resp.Results = append(resp.Results, listingItem{
			UID:                  s.UID,
			FirstPublicationDate: views.Datetime(s.FirstPublished),
			DisplayDate:          views.FormatDate(s.FirstPublished, a.location),
			Data:                 listingData{Title: s.Title, Subtitle: s.Subtitle, Author: s.Author},
		})
	}
	if next := loadMoreURL(page.NextCursor); next != "" {
		resp.NextPage = &next
	}
	c.Response().Header().Set("Cache-Control", noStore)
	return c.JSON(http.StatusOK, resp)
}

func (a *App) handleFeed(c echo.Context) error {
	ttl := a.Config.Revalidate.Listing
	page, state, err := a.Cache.Get(c.Request().Context(), feedKey, ttl, a.renderFeed)
	if err != nil {
		return a.contentError(err)
	}
	return writePage(c, page, state, "public, max-age=86400")
}

func (a *App) handleSitemap(c echo.Context) error {
	ttl := a.Config.Revalidate.Listing
	page, state, err := a.Cache.Get(c.Request().Context(), sitemapKey, ttl, a.renderSitemap)
	if err != nil {
		return a.contentError(err)
	}
	return writePage(c, page, state, "public, max-age=86400")
}

func (a *App) handleRobots(c echo.Context) error {
	body, err := EmbeddedAssets.ReadFile("embedded/robots.txt")
	if err != nil {
		return err
	}
	body = append(body, fmt.Sprintf("Sitemap: %s\n", BuildURL(a.Config.URL, "sitemap.xml"))...)
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, body)
}

func (a *App) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":            "ok",
		"known_paths":       a.paths.len(),
		"cached":            len(a.Cache.Keys()),
		"fallbacks_pending": a.fallbacks.len(),
	})
}

// contentError turns a content failure into the HTTP error the error
// handler renders.
func (a *App) contentError(err error) error {
	status := statusFor(err)
	if status == http.StatusNotFound {
		return echo.ErrNotFound
	}
	return &echo.HTTPError{Code: status, Message: http.StatusText(status), Internal: err}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound {
		c.Response().Header().Set("Cache-Control", noStore)
		_ = RenderStatus(c, http.StatusNotFound, a.Views.Error(a.errorView(http.StatusNotFound)))
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Logger.Error("server error",
			logger.String("path", c.Request().URL.Path),
			logger.Int("status", code),
			logger.Error(err),
		)
		c.Response().Header().Set("Cache-Control", noStore)
		_ = RenderStatus(c, code, a.Views.Error(a.errorView(code)))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
