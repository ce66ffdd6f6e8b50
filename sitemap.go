package spacetraveling

import (
	"bytes"
	"context"
	"encoding/xml"

	"github.com/eringen/spacetraveling/content"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// renderSitemap lists the home page and every published article.
func (a *App) renderSitemap(ctx context.Context) (Page, error) {
	listing, err := a.sitemap.All(ctx, "")
	if err != nil {
		return Page{}, err
	}
	return a.encodeSitemap(listing.Items)
}

func (a *App) encodeSitemap(posts []content.Summary) (Page, error) {
	base := a.Config.URL
	urls := []sitemapURL{
		{Loc: BuildURL(base)},
	}
	for _, p := range posts {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "post", p.UID),
			LastMod: p.FirstPublished.Format("2006-01-02"),
		})
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(sitemap); err != nil {
		return Page{}, err
	}
	return Page{Body: buf.Bytes(), ContentType: "application/xml; charset=utf-8"}, nil
}
