package spacetraveling

import (
	"encoding/json"
	"html/template"
	"net/url"
	"path"
	"strings"

	"github.com/eringen/spacetraveling/content"
)

// BuildURL joins a base URL with path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) == 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

const postPrefix = "/post/"

// PostPath is the site path of an article.
func PostPath(uid string) string {
	return postPrefix + url.PathEscape(uid)
}

// PageTitle formats the document title of a page.
func PageTitle(title, siteName string) string {
	return title + " | " + siteName
}

// WebsiteJsonLD returns a JSON-LD value for a WebSite schema using SiteConfig.
func WebsiteJsonLD(cfg SiteConfig) template.JS {
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        cfg.Name,
		"url":         BuildURL(cfg.URL),
		"description": cfg.Description,
	}
	return marshalJsonLD(data)
}

// BlogPostingJsonLD returns a JSON-LD value for a BlogPosting schema.
func BlogPostingJsonLD(doc content.Document, cfg SiteConfig) template.JS {
	postURL := BuildURL(cfg.URL, "post", doc.UID)
	data := map[string]interface{}{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      doc.Title,
		"description":   doc.Subtitle,
		"datePublished": doc.FirstPublished.Format("2006-01-02T15:04:05Z07:00"),
		"dateModified":  doc.LastPublished.Format("2006-01-02T15:04:05Z07:00"),
		"url":           postURL,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if doc.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  doc.Author,
		}
	}
	if doc.Banner != "" {
		data["image"] = doc.Banner
	}
	if cfg.Name != "" {
		data["publisher"] = map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		}
	}
	return marshalJsonLD(data)
}

func marshalJsonLD(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return template.JS(b)
}
