// Package views holds the default page templates. Pages are html/template
// files embedded in the binary and exposed as templ components so they
// slot into the same rendering path as hand-written components.
package views

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	homePage     = parsePage("home.html")
	postPage     = parsePage("post.html")
	fallbackPage = parsePage("fallback.html")
	errorPage    = parsePage("error.html")
)

func parsePage(name string) *template.Template {
	t := template.Must(template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	return t.Lookup("layout")
}

// Home renders the listing page.
func Home(v HomeView) templ.Component { return templ.FromGoHTML(homePage, v) }

// Post renders an article page.
func Post(v PostView) templ.Component { return templ.FromGoHTML(postPage, v) }

// Fallback renders the loading placeholder.
func Fallback(v FallbackView) templ.Component { return templ.FromGoHTML(fallbackPage, v) }

// Error renders the not-found and server-error pages.
func Error(v ErrorView) templ.Component { return templ.FromGoHTML(errorPage, v) }
