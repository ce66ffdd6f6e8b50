package content

import (
	"context"

	"github.com/eringen/spacetraveling/prismic"
)

// Source is the part of the content API the paginator and assembler use.
// *prismic.Client implements it.
type Source interface {
	Query(ctx context.Context, documentType string, opts prismic.QueryOptions) (prismic.RawPage, error)
	GetByUID(ctx context.Context, documentType, uid, ref string) (prismic.RawDocument, error)
}
