// Package spacetraveling is a server-rendered blog front end over a headless
// content API. It renders a paginated listing and article pages, keeps
// rendered pages fresh with stale-while-revalidate regeneration, and lets
// editors preview unpublished revisions.
//
// Pages are plain templ components supplied through ViewFuncs, so a site
// can restyle everything without touching the handlers.
package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/logger"
	"github.com/eringen/spacetraveling/prismic"
)

// ContentSource is everything the App needs from the content API.
// *prismic.Client implements it.
type ContentSource interface {
	content.Source
	GetByID(ctx context.Context, id, ref string) (prismic.RawDocument, error)
	ListAllUIDs(ctx context.Context, documentType string) ([]string, error)
}

// App is the central spacetraveling application. It wires together the
// content client, page cache, handlers, middleware and templates.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Source    ContentSource
	Paginator *content.Paginator
	Assembler *content.Assembler
	Cache     *PageCache
	Views     ViewFuncs
	Logger    logger.Logger
	Metrics   *Metrics

	feed         *content.Paginator
	sitemap      *content.Paginator
	snapshots    SnapshotStore
	scheduler    *Scheduler
	limiter      *RequestLimiter
	paths        *pathSet
	fallbacks    *fallbackTracker
	registry     *prometheus.Registry
	location     *time.Location
	customRoutes []func(*App)
	initialized  bool
}

// New creates an App with the given configuration. Call Init (or Start)
// before serving.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Views:  DefaultViews(),
		Logger: logger.NewNop(),
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	a.Views.fillDefaults()
	return a
}

// Init validates the configuration and builds every component. It is
// called by Start; tests call it directly and drive a.Echo.
func (a *App) Init() error {
	if a.initialized {
		return nil
	}
	if err := a.Config.Validate(); err != nil {
		return err
	}
	a.location, _ = time.LoadLocation(a.Config.Timezone)

	if a.Source == nil {
		client, err := prismic.New(prismic.Config{
			Endpoint:    a.Config.Prismic.Endpoint,
			AccessToken: a.Config.Prismic.AccessToken,
			Timeout:     a.Config.Prismic.Timeout,
			MaxAttempts: a.Config.Prismic.MaxAttempts,
			RefTTL:      a.Config.Prismic.RefTTL,
		}, a.Logger.With(logger.String("component", "prismic")))
		if err != nil {
			return &ConfigurationError{Field: "prismic", Reason: err.Error()}
		}
		a.Source = client
	}

	docType := a.Config.Prismic.DocumentType
	orderings := prismic.ParseOrderings(a.Config.Listing.Ordering)
	a.Paginator = content.NewPaginator(a.Source, docType, a.Config.Listing.PageSize, orderings)
	a.feed = content.NewPaginator(a.Source, docType, a.Config.Listing.FeedSize, orderings)
	a.sitemap = content.NewPaginator(a.Source, docType, 100, orderings)
	a.Assembler = content.NewAssembler(a.Source, docType, a.Config.Listing.NavigationField)

	a.registry = prometheus.NewRegistry()
	a.Metrics = NewMetrics(a.registry)

	if a.snapshots == nil {
		store, err := NewSnapshotStore(a.Config.Cache)
		if err != nil {
			return fmt.Errorf("spacetraveling: init snapshot store: %w", err)
		}
		a.snapshots = store
	}
	a.Cache = NewPageCache(a.snapshots, a.Config.Revalidate.Timeout,
		a.Logger.With(logger.String("component", "cache")), a.Metrics)

	scheduler, err := NewScheduler(a.Config.Revalidate.Schedule, a.Cache, a.Config.Revalidate.Timeout,
		a.Logger.With(logger.String("component", "scheduler")))
	if err != nil {
		return err
	}
	a.scheduler = scheduler
	a.limiter = NewRequestLimiter(a.Config.LoadMoreLimit, time.Minute)
	a.paths = newPathSet()
	a.fallbacks = newFallbackTracker(a.Config.FallbackTimeout, func(ctx context.Context, uid string, article content.Article) error {
		if _, err := a.storeResolved(ctx, uid, article); err != nil {
			return err
		}
		a.Metrics.Fallbacks.WithLabelValues(content.Ready.String()).Inc()
		return nil
	})

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.initialized = true
	return nil
}

// Start initializes the app, warms the cache, and serves until ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(); err != nil {
		return err
	}
	defer a.Close()

	if n, err := a.RestoreKnownPaths(ctx); err != nil {
		a.Logger.Warn("restore known paths", logger.Error(err))
	} else if n > 0 {
		a.Logger.Info("restored known paths", logger.Int("articles", n))
	}
	if !a.Config.SkipPrerender {
		if err := a.Prerender(ctx); err != nil {
			a.Logger.Warn("prerender incomplete", logger.Error(err))
		}
	}
	a.scheduler.Start()
	defer a.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", logger.String("addr", a.Config.Addr))
		errCh <- a.Echo.Start(a.Config.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Logger.Info("shutting down")
		return a.Echo.Shutdown(shutdownCtx)
	}
}

// RestoreKnownPaths adds the articles persisted by a previous run to the
// known set, so they keep being served from their snapshots when the
// content API cannot be listed at startup. It returns the number added.
func (a *App) RestoreKnownPaths(ctx context.Context) (int, error) {
	if a.snapshots == nil {
		return 0, nil
	}
	keys, err := a.snapshots.Keys(ctx)
	if err != nil {
		return 0, err
	}
	var uids []string
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, postPrefix)
		if !ok {
			continue
		}
		if uid, err := url.PathUnescape(rest); err == nil && uid != "" {
			uids = append(uids, uid)
		}
	}
	a.paths.add(uids...)
	return len(uids), nil
}

// Prerender renders the listing and every published article into the
// cache and records the article uids as known paths. Failed pages are
// reported together; the rest are still rendered.
func (a *App) Prerender(ctx context.Context) error {
	uids, err := a.Source.ListAllUIDs(ctx, a.Config.Prismic.DocumentType)
	if err != nil {
		return fmt.Errorf("list paths: %w", err)
	}
	a.paths.add(uids...)

	var errs []error
	if _, _, err := a.Cache.Get(ctx, homeKey, a.Config.Revalidate.Listing, a.homeRenderer()); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", homeKey, err))
	}
	for _, uid := range uids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, _, err := a.Cache.Get(ctx, PostPath(uid), a.Config.Revalidate.Article, a.articleRenderer(uid)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", PostPath(uid), err))
		}
	}
	a.Logger.Info("prerender finished",
		logger.Int("articles", len(uids)),
		logger.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

func (a *App) setupRoutes() {
	e := a.Echo

	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	e.StaticFS("/public", assets)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/", a.handleHome)
	e.GET("/post/:slug", a.handlePost)

	e.GET("/api/posts", a.handleLoadMore)
	e.GET("/api/preview", a.handlePreview)
	e.GET("/api/exit-preview", a.handleExitPreview)
}

// Close waits for background regenerations and releases resources.
func (a *App) Close() error {
	if a.Cache != nil {
		a.Cache.Wait()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.snapshots != nil {
		return a.snapshots.Close()
	}
	return nil
}
