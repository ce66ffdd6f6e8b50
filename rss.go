package spacetraveling

import (
	"bytes"
	"context"
	"encoding/xml"
	"time"

	"github.com/eringen/spacetraveling/content"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Language    string    `xml:"language"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// renderFeed renders the newest articles as RSS 2.0.
func (a *App) renderFeed(ctx context.Context) (Page, error) {
	listing, err := a.feed.FirstPage(ctx, "")
	if err != nil {
		return Page{}, err
	}
	return a.encodeFeed(listing.Items)
}

func (a *App) encodeFeed(posts []content.Summary) (Page, error) {
	base := a.Config.URL
	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		postURL := BuildURL(base, "post", p.UID)
		items = append(items, rssItem{
			Title:       p.Title,
			Link:        postURL,
			Description: p.Subtitle,
			PubDate:     p.FirstPublished.Format(time.RFC1123Z),
			GUID:        postURL,
		})
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       a.Config.Name,
			Link:        BuildURL(base),
			Description: a.Config.Description,
			Language:    "pt-BR",
			Items:       items,
		},
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(feed); err != nil {
		return Page{}, err
	}
	return Page{Body: buf.Bytes(), ContentType: "application/rss+xml; charset=utf-8"}, nil
}
