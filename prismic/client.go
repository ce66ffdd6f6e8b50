// Package prismic is a small read-only client for a Prismic-compatible
// headless content API. It resolves refs, runs predicate searches and
// follows pagination cursors. Everything above the raw wire shapes lives
// in the content package.
package prismic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/eringen/spacetraveling/logger"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultRefTTL         = 5 * time.Second
	listPageSize          = 100
	searchPath            = "/documents/search"
)

// Config configures a Client.
type Config struct {
	// Endpoint is the API root, e.g. https://repo.cdn.prismic.io/api/v2.
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
	// MaxAttempts bounds tries per request. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RefTTL is how long the resolved master ref is reused.
	RefTTL     time.Duration
	HTTPClient *http.Client
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.RefTTL <= 0 {
		c.RefTTL = defaultRefTTL
	}
}

// Client talks to one content repository.
type Client struct {
	cfg      Config
	endpoint *url.URL
	http     *http.Client
	log      logger.Logger

	mu        sync.Mutex
	masterRef string
	refAt     time.Time
	now       func() time.Time
}

// New validates cfg and returns a ready client. log may be nil.
func New(cfg Config, log logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrMissingEndpoint
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, ErrMissingToken
	}
	u, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api endpoint must be http or https, got %q", cfg.Endpoint)
	}
	cfg.setDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:      cfg,
		endpoint: u,
		http:     hc,
		log:      log,
		now:      time.Now,
	}, nil
}

// MasterRef returns the ref of the published revision.
func (c *Client) MasterRef(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.masterRef != "" && c.now().Sub(c.refAt) < c.cfg.RefTTL {
		ref := c.masterRef
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	u := *c.endpoint
	c.authorize(&u)
	var root apiRoot
	if err := c.get(ctx, "resolve ref", &u, &root); err != nil {
		return "", err
	}
	for _, r := range root.Refs {
		if r.IsMasterRef {
			c.mu.Lock()
			c.masterRef, c.refAt = r.Ref, c.now()
			c.mu.Unlock()
			return r.Ref, nil
		}
	}
	return "", &RetrievalError{Op: "resolve ref", URL: redact(&u), Err: errors.New("api root lists no master ref")}
}

// Query runs a search for all documents of documentType.
func (c *Client) Query(ctx context.Context, documentType string, opts QueryOptions) (RawPage, error) {
	if documentType == "" {
		return RawPage{}, errors.New("query: document type is required")
	}
	if opts.PageSize <= 0 {
		return RawPage{}, fmt.Errorf("query: page size must be positive, got %d", opts.PageSize)
	}
	return c.search(ctx, "query", []string{at("document.type", documentType)}, opts)
}

// GetByUID returns the single document with the given uid.
func (c *Client) GetByUID(ctx context.Context, documentType, uid, ref string) (RawDocument, error) {
	if documentType == "" || uid == "" {
		return RawDocument{}, &NotFoundError{DocumentType: documentType, UID: uid}
	}
	page, err := c.search(ctx, "get by uid", []string{at("my."+documentType+".uid", uid)},
		QueryOptions{PageSize: 1, Ref: ref})
	if err != nil {
		return RawDocument{}, err
	}
	if len(page.Results) == 0 {
		return RawDocument{}, &NotFoundError{DocumentType: documentType, UID: uid}
	}
	return page.Results[0], nil
}

// GetByID returns the document with the given upstream id.
func (c *Client) GetByID(ctx context.Context, id, ref string) (RawDocument, error) {
	if id == "" {
		return RawDocument{}, &NotFoundError{DocumentType: "document", UID: id}
	}
	page, err := c.search(ctx, "get by id", []string{at("document.id", id)},
		QueryOptions{PageSize: 1, Ref: ref})
	if err != nil {
		return RawDocument{}, err
	}
	if len(page.Results) == 0 {
		return RawDocument{}, &NotFoundError{DocumentType: "document", UID: id}
	}
	return page.Results[0], nil
}

// ListAllUIDs enumerates the uid of every published document of the type,
// following next_page links until the last page.
func (c *Client) ListAllUIDs(ctx context.Context, documentType string) ([]string, error) {
	var uids []string
	res, err := c.Query(ctx, documentType, QueryOptions{PageSize: listPageSize})
	for page := 1; ; page++ {
		if err != nil {
			return nil, err
		}
		for _, doc := range res.Results {
			if doc.UID != "" {
				uids = append(uids, doc.UID)
			}
		}
		if res.NextPage == nil || *res.NextPage == "" || len(res.Results) == 0 ||
			(res.TotalPages > 0 && page >= res.TotalPages) {
			return uids, nil
		}
		res, err = c.FetchPage(ctx, *res.NextPage)
	}
}

// FetchPage follows a next_page link returned by a previous search. The
// link must address this client's search endpoint; the access token is
// set here. Links are never taken from browsers.
func (c *Client) FetchPage(ctx context.Context, nextPage string) (RawPage, error) {
	u, err := url.Parse(nextPage)
	if err != nil || !c.ownsSearchURL(u) {
		return RawPage{}, &RetrievalError{Op: "fetch page", URL: redactString(nextPage), Err: ErrInvalidCursor}
	}
	c.authorize(u)
	var page RawPage
	if err := c.get(ctx, "fetch page", u, &page); err != nil {
		return RawPage{}, err
	}
	return page, nil
}

func (c *Client) ownsSearchURL(u *url.URL) bool {
	return u.Scheme == c.endpoint.Scheme &&
		strings.EqualFold(u.Host, c.endpoint.Host) &&
		strings.TrimSuffix(u.Path, "/") == c.endpoint.Path+searchPath &&
		u.User == nil
}

func (c *Client) search(ctx context.Context, op string, predicates []string, opts QueryOptions) (RawPage, error) {
	ref := opts.Ref
	if ref == "" {
		var err error
		if ref, err = c.MasterRef(ctx); err != nil {
			return RawPage{}, err
		}
	}

	u := *c.endpoint
	u.Path += searchPath
	q := url.Values{}
	q.Set("ref", ref)
	q.Set("q", "["+strings.Join(predicates, "")+"]")
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.Page > 1 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.After != "" {
		q.Set("after", opts.After)
	}
	if len(opts.Orderings) > 0 {
		q.Set("orderings", FormatOrderings(opts.Orderings))
	}
	u.RawQuery = q.Encode()
	c.authorize(&u)

	var page RawPage
	if err := c.get(ctx, op, &u, &page); err != nil {
		return RawPage{}, err
	}
	return page, nil
}

func (c *Client) authorize(u *url.URL) {
	q := u.Query()
	q.Set("access_token", c.cfg.AccessToken)
	u.RawQuery = q.Encode()
}

// get issues a GET and decodes the JSON body into out, retrying transient
// failures up to MaxAttempts.
func (c *Client) get(ctx context.Context, op string, u *url.URL, out any) error {
	attempt := func() error {
		err := c.do(ctx, op, u, out)
		if err == nil {
			return nil
		}
		var re *RetrievalError
		if ctx.Err() != nil || !errors.As(err, &re) || !re.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)

	return backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		c.log.Warn("content api request failed, retrying",
			logger.String("op", op),
			logger.Duration("backoff", wait),
			logger.Error(err),
		)
	})
}

func (c *Client) do(ctx context.Context, op string, u *url.URL, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &RetrievalError{Op: op, URL: redact(u), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &RetrievalError{Op: op, URL: redact(u), Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("content api request",
		logger.String("op", op),
		logger.String("url", redact(u)),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &RetrievalError{
			Op:         op,
			URL:        redact(u),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RetrievalError{Op: op, URL: redact(u), StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func at(path, value string) string {
	return "[at(" + path + "," + strconv.Quote(value) + ")]"
}

func redact(u *url.URL) string {
	cp := *u
	q := cp.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		cp.RawQuery = q.Encode()
	}
	return cp.String()
}

func redactString(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return "<unparseable>"
	}
	return redact(u)
}
