// Package richtext renders Prismic structured text as HTML, either into a
// buffer or as a template.HTML value.
package richtext

import (
	"bytes"
	"html"
	"html/template"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Block is one structured-text element.
type Block struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	Spans      []Span      `json:"spans,omitempty"`
	URL        string      `json:"url,omitempty"`
	Alt        string      `json:"alt,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	Oembed     *Oembed     `json:"oembed,omitempty"`
}

// Span marks up Text[Start:End]. Offsets count UTF-16 code units.
type Span struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Type  string    `json:"type"`
	Data  *SpanData `json:"data,omitempty"`
}

type SpanData struct {
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Label  string `json:"label,omitempty"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Oembed struct {
	HTML         string `json:"html"`
	EmbedURL     string `json:"embed_url"`
	Type         string `json:"type"`
	ProviderName string `json:"provider_name"`
}

const (
	TypeParagraph    = "paragraph"
	TypePreformatted = "preformatted"
	TypeListItem     = "list-item"
	TypeOListItem    = "o-list-item"
	TypeImage        = "image"
	TypeEmbed        = "embed"

	SpanStrong    = "strong"
	SpanEm        = "em"
	SpanHyperlink = "hyperlink"
	SpanLabel     = "label"
)

// Clone returns a deep copy of blocks.
func Clone(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b
		if b.Spans != nil {
			out[i].Spans = make([]Span, len(b.Spans))
			for j, s := range b.Spans {
				out[i].Spans[j] = s
				if s.Data != nil {
					d := *s.Data
					out[i].Spans[j].Data = &d
				}
			}
		}
		if b.Dimensions != nil {
			d := *b.Dimensions
			out[i].Dimensions = &d
		}
		if b.Oembed != nil {
			o := *b.Oembed
			out[i].Oembed = &o
		}
	}
	return out
}

// PlainText is the visible text of a block.
func PlainText(b Block) string {
	if b.Type == TypeImage {
		return ""
	}
	return b.Text
}

// HTML renders blocks for embedding in an html/template.
func HTML(blocks []Block) template.HTML {
	var buf bytes.Buffer
	Render(&buf, blocks)
	return template.HTML(buf.String())
}

// Render writes the HTML representation of blocks to buf. Consecutive list
// items are grouped into one list.
func Render(buf *bytes.Buffer, blocks []Block) {
	imageCount := 0
	inList := false
	inOrderedList := false

	flushList := func() {
		if inList {
			buf.WriteString("</ul>")
			inList = false
		}
	}
	flushOrderedList := func() {
		if inOrderedList {
			buf.WriteString("</ol>")
			inOrderedList = false
		}
	}

	for _, b := range blocks {
		if b.Type != TypeListItem {
			flushList()
		}
		if b.Type != TypeOListItem {
			flushOrderedList()
		}

		switch {
		case b.Type == TypeParagraph:
			buf.WriteString("<p>" + FormatSpans(b.Text, b.Spans) + "</p>")
		case isHeading(b.Type):
			tag := "h" + b.Type[len("heading"):]
			buf.WriteString("<" + tag + ">" + FormatSpans(b.Text, b.Spans) + "</" + tag + ">")
		case b.Type == TypePreformatted:
			buf.WriteString("<pre>" + FormatSpans(b.Text, b.Spans) + "</pre>")
		case b.Type == TypeListItem:
			if !inList {
				buf.WriteString("<ul>")
				inList = true
			}
			buf.WriteString("<li>" + FormatSpans(b.Text, b.Spans) + "</li>")
		case b.Type == TypeOListItem:
			if !inOrderedList {
				buf.WriteString("<ol>")
				inOrderedList = true
			}
			buf.WriteString("<li>" + FormatSpans(b.Text, b.Spans) + "</li>")
		case b.Type == TypeImage:
			src := SafeURL(b.URL)
			if src == "" {
				continue
			}
			imageCount++
			loadAttr := `loading="lazy"`
			if imageCount == 1 {
				loadAttr = `fetchpriority="high"`
			}
			buf.WriteString(`<p class="block-img"><img ` + loadAttr + ` src="` + src + `" alt="` + html.EscapeString(b.Alt) + `"`)
			if d := b.Dimensions; d != nil && d.Width > 0 && d.Height > 0 {
				buf.WriteString(` width="` + strconv.Itoa(d.Width) + `" height="` + strconv.Itoa(d.Height) + `"`)
			}
			buf.WriteString(` decoding="async"/></p>`)
		case b.Type == TypeEmbed:
			if b.Oembed == nil || b.Oembed.HTML == "" {
				continue
			}
			// Embed markup is authored in the CMS and passed through as is.
			buf.WriteString(`<div data-oembed="` + html.EscapeString(b.Oembed.EmbedURL) +
				`" data-oembed-type="` + html.EscapeString(b.Oembed.Type) +
				`" data-oembed-provider="` + html.EscapeString(strings.ToLower(b.Oembed.ProviderName)) + `">` +
				b.Oembed.HTML + `</div>`)
		default:
			if b.Text != "" {
				buf.WriteString("<p>" + FormatSpans(b.Text, b.Spans) + "</p>")
			}
		}
	}
	flushList()
	flushOrderedList()
}

func isHeading(t string) bool {
	if !strings.HasPrefix(t, "heading") || len(t) != len("heading")+1 {
		return false
	}
	n := t[len(t)-1]
	return n >= '1' && n <= '6'
}

// FormatSpans escapes text and wraps the ranges covered by spans in their
// tags. Overlapping spans are split at every boundary so the output is
// always well nested.
func FormatSpans(text string, spans []Span) string {
	units := utf16.Encode([]rune(text))
	n := len(units)

	bounds := []int{0, n}
	valid := make([]Span, 0, len(spans))
	for _, s := range spans {
		start, end := max(0, s.Start), min(n, s.End)
		if start >= end || openTag(s) == "" {
			continue
		}
		s.Start, s.End = start, end
		valid = append(valid, s)
		bounds = append(bounds, start, end)
	}
	if len(valid) == 0 {
		return escapeText(text)
	}
	sort.Ints(bounds)

	// Outer spans open first so their tags enclose the inner ones.
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End > valid[j].End
	})

	var b strings.Builder
	for i := 0; i+1 < len(bounds); i++ {
		from, to := bounds[i], bounds[i+1]
		if from == to {
			continue
		}
		var active []Span
		for _, s := range valid {
			if s.Start <= from && s.End >= to {
				active = append(active, s)
			}
		}
		for _, s := range active {
			b.WriteString(openTag(s))
		}
		b.WriteString(escapeText(string(utf16.Decode(units[from:to]))))
		for j := len(active) - 1; j >= 0; j-- {
			b.WriteString(closeTag(active[j]))
		}
	}
	return b.String()
}

func openTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "<strong>"
	case SpanEm:
		return "<em>"
	case SpanLabel:
		label := ""
		if s.Data != nil {
			label = s.Data.Label
		}
		return `<span class="` + html.EscapeString(label) + `">`
	case SpanHyperlink:
		if s.Data == nil {
			return ""
		}
		href := SafeURL(s.Data.URL)
		if href == "" {
			return ""
		}
		attrs := ""
		if s.Data.Target == "_blank" {
			attrs = ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `"` + attrs + `>`
	}
	return ""
}

func closeTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "</strong>"
	case SpanEm:
		return "</em>"
	case SpanLabel:
		return "</span>"
	case SpanHyperlink:
		return "</a>"
	}
	return ""
}

func escapeText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br />")
}

// SafeURL validates and sanitizes a URL for use in HTML attributes.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		if strings.HasPrefix(val, "//") {
			return ""
		}
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
