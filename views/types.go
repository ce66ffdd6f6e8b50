package views

import "html/template"

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	Image       string // og:image
	// Refresh, when positive, asks the browser to reload after that many seconds.
	Refresh int
}

// Page is embedded by every view model.
type Page struct {
	Meta     PageMeta
	SiteName string
	// Preview shows the exit-preview control.
	Preview bool
}

// PostItem is one entry of the listing.
type PostItem struct {
	UID      string
	Title    string
	Subtitle string
	Author   string
	Date     string // formatted for display
	Datetime string // machine readable
}

// HomeView renders the listing page.
type HomeView struct {
	Page
	Posts []PostItem
	// NextPage is the listing fetch URL; empty hides the load-more control.
	NextPage string
	JSONLD   template.JS
}

// SectionView is a rendered article section.
type SectionView struct {
	Heading string
	HTML    template.HTML
}

// NavLink points at a neighbouring article.
type NavLink struct {
	UID   string
	Title string
}

// Comments configures the utterances widget.
type Comments struct {
	Repo  string
	Theme string
}

// PostView renders an article page.
type PostView struct {
	Page
	UID            string
	Title          string
	Author         string
	Banner         string
	Date           string
	Datetime       string
	ReadingMinutes int
	Edited         bool
	EditedDate     string
	EditedTime     string
	Sections       []SectionView
	Previous       *NavLink
	Next           *NavLink
	Comments       *Comments
	JSONLD         template.JS
}

// FallbackView is served while an article is still being retrieved.
type FallbackView struct {
	Page
}

// ErrorView renders the not-found and server-error pages.
type ErrorView struct {
	Page
	Status  int
	Message string
}
