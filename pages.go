package spacetraveling

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/richtext"
	"github.com/eringen/spacetraveling/views"
)

// ViewFuncs holds the components the App renders pages with. DefaultViews
// returns the built-in templates; replace any of them with WithViews.
type ViewFuncs struct {
	Home     func(v views.HomeView) templ.Component
	Post     func(v views.PostView) templ.Component
	Fallback func(v views.FallbackView) templ.Component
	Error    func(v views.ErrorView) templ.Component
}

// DefaultViews returns the built-in page templates.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:     views.Home,
		Post:     views.Post,
		Fallback: views.Fallback,
		Error:    views.Error,
	}
}

func (v *ViewFuncs) fillDefaults() {
	d := DefaultViews()
	if v.Home == nil {
		v.Home = d.Home
	}
	if v.Post == nil {
		v.Post = d.Post
	}
	if v.Fallback == nil {
		v.Fallback = d.Fallback
	}
	if v.Error == nil {
		v.Error = d.Error
	}
}

// loadMoreURL is the listing fetch endpoint for cursor.
func loadMoreURL(cursor string) string {
	if cursor == "" {
		return ""
	}
	return "/api/posts?cursor=" + url.QueryEscape(cursor)
}

func (a *App) page(title, path, ogType string, preview bool) views.Page {
	return views.Page{
		Meta: views.PageMeta{
			Title:       PageTitle(title, a.Config.Name),
			Description: a.Config.Description,
			URL:         BuildURL(a.Config.URL, path),
			OGType:      ogType,
		},
		SiteName: a.Config.Name,
		Preview:  preview,
	}
}

func (a *App) postItem(s content.Summary) views.PostItem {
	return views.PostItem{
		UID:      s.UID,
		Title:    s.Title,
		Subtitle: s.Subtitle,
		Author:   s.Author,
		Date:     views.FormatDate(s.FirstPublished, a.location),
		Datetime: views.Datetime(s.FirstPublished),
	}
}

// HomeView builds the listing view model.
func (a *App) HomeView(listing content.ListingPage, preview bool) views.HomeView {
	v := views.HomeView{
		Page:     a.page("Home", "", "website", preview),
		Posts:    make([]views.PostItem, 0, len(listing.Items)),
		NextPage: loadMoreURL(listing.NextCursor),
		JSONLD:   WebsiteJsonLD(a.Config),
	}
	v.Meta.URL = BuildURL(a.Config.URL)
	for _, s := range listing.Items {
		v.Posts = append(v.Posts, a.postItem(s))
	}
	return v
}

// PostView builds the article view model.
func (a *App) PostView(article content.Article, preview bool) views.PostView {
	doc := article.Document
	v := views.PostView{
		Page:           a.page(doc.Title, "post/"+doc.UID, "article", preview),
		UID:            doc.UID,
		Title:          doc.Title,
		Author:         doc.Author,
		Banner:         doc.Banner,
		Date:           views.FormatDate(doc.FirstPublished, a.location),
		Datetime:       views.Datetime(doc.FirstPublished),
		ReadingMinutes: article.ReadingMinutes,
		Edited:         doc.Edited(),
		Sections:       make([]views.SectionView, 0, len(doc.Body)),
		JSONLD:         BlogPostingJsonLD(doc, a.Config),
	}
	if doc.Subtitle != "" {
		v.Meta.Description = doc.Subtitle
	}
	v.Meta.Image = doc.Banner
	if v.Edited {
		v.EditedDate = views.FormatDate(doc.LastPublished, a.location)
		v.EditedTime = views.FormatTime(doc.LastPublished, a.location)
	}
	for _, sec := range doc.Body {
		v.Sections = append(v.Sections, views.SectionView{Heading: sec.Heading, HTML: richtext.HTML(sec.Content)})
	}
	if p := article.Navigation.Previous; p != nil {
		v.Previous = &views.NavLink{UID: p.UID, Title: p.Title}
	}
	if n := article.Navigation.Next; n != nil {
		v.Next = &views.NavLink{UID: n.UID, Title: n.Title}
	}
	if a.Config.Comments.Repo != "" && !preview {
		v.Comments = &views.Comments{Repo: a.Config.Comments.Repo, Theme: a.Config.Comments.Theme}
	}
	return v
}

func (a *App) errorView(status int) views.ErrorView {
	msg := "Algo deu errado. Tente novamente em instantes."
	title := "Erro"
	if status == http.StatusNotFound {
		msg = "Página não encontrada."
		title = "Página não encontrada"
	}
	return views.ErrorView{
		Page:    a.page(title, "", "website", false),
		Status:  status,
		Message: msg,
	}
}

// renderHome fetches the first listing page and renders it.
func (a *App) renderHome(ctx context.Context, ref string) (Page, error) {
	defer a.observe("home", time.Now())
	listing, err := a.Paginator.FirstPage(ctx, ref)
	if err != nil {
		a.countRender("home", err)
		return Page{}, err
	}
	page, err := RenderPage(ctx, a.Views.Home(a.HomeView(listing, ref != "")))
	a.countRender("home", err)
	return page, err
}

// renderArticle assembles and renders the article page for uid.
func (a *App) renderArticle(ctx context.Context, uid, ref string) (Page, error) {
	defer a.observe("post", time.Now())
	article, err := a.Assembler.Assemble(ctx, uid, ref)
	if err != nil {
		a.countRender("post", err)
		return Page{}, err
	}
	page, err := a.renderAssembled(ctx, article, ref != "")
	a.countRender("post", err)
	return page, err
}

func (a *App) renderAssembled(ctx context.Context, article content.Article, preview bool) (Page, error) {
	return RenderPage(ctx, a.Views.Post(a.PostView(article, preview)))
}

func (a *App) homeRenderer() RenderFunc {
	return func(ctx context.Context) (Page, error) { return a.renderHome(ctx, "") }
}

func (a *App) articleRenderer(uid string) RenderFunc {
	return func(ctx context.Context) (Page, error) { return a.renderArticle(ctx, uid, "") }
}

func (a *App) observe(page string, start time.Time) {
	a.Metrics.RenderDuration.WithLabelValues(page).Observe(time.Since(start).Seconds())
}

func (a *App) countRender(page string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	a.Metrics.Renders.WithLabelValues(page, outcome).Inc()
}
