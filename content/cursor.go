package content

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/eringen/spacetraveling/prismic"
)

// Cursor addresses a listing page. It carries only the page number and
// the revision; the query itself is always rebuilt from the paginator's
// own document type and orderings.
type Cursor struct {
	Page int
	// Ref is empty for the published revision.
	Ref string
}

// String encodes c for use in a load-more link.
func (c Cursor) String() string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(c.Page))
	if c.Ref != "" {
		v.Set("ref", c.Ref)
	}
	return v.Encode()
}

// ParseCursor decodes a value produced by Cursor.String. Anything else,
// including unknown parameters, is a *prismic.RetrievalError wrapping
// prismic.ErrInvalidCursor.
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, ErrNoCursor
	}
	v, err := url.ParseQuery(s)
	if err != nil {
		return Cursor{}, invalidCursor(err.Error())
	}
	for key, vals := range v {
		if (key != "page" && key != "ref") || len(vals) != 1 {
			return Cursor{}, invalidCursor(fmt.Sprintf("unexpected parameter %q", key))
		}
	}
	page, err := strconv.Atoi(v.Get("page"))
	if err != nil || page < 2 {
		return Cursor{}, invalidCursor(fmt.Sprintf("page %q", v.Get("page")))
	}
	c := Cursor{Page: page, Ref: v.Get("ref")}
	if v.Has("ref") && c.Ref == "" {
		return Cursor{}, invalidCursor("empty ref")
	}
	return c, nil
}

func invalidCursor(reason string) error {
	return &prismic.RetrievalError{
		Op:  "load more",
		Err: fmt.Errorf("%w: %s", prismic.ErrInvalidCursor, reason),
	}
}
