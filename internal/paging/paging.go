// Package paging drains paginated endpoints into a single slice.
package paging

import (
	"context"
	"fmt"

	"github.com/derickschaefer/wxstation/internal/model"
)

const (
	// DefaultPageSize is what callers request per page. The API itself
	// defaults to 10, which makes long ranges needlessly chatty.
	DefaultPageSize = 50
	// DefaultMaxPages bounds a fetch against a server that never reports a
	// last page.
	DefaultMaxPages = 1000
)

// FetchFunc returns one page, numbered from Options.FirstPage.
type FetchFunc[T any] func(ctx context.Context, page int) (model.Page[T], error)

// Options controls FetchAll. Zero values take the defaults.
type Options struct {
	FirstPage int
	MaxPages  int
	// OnPage, when set, is called after each page is received.
	OnPage func(page, items int)
}

// FetchAll requests pages one at a time until the server reports no next
// page and returns every item in page order. Any page error aborts the whole
// fetch: no partial data is returned. ErrPaginationExhausted is returned when
// MaxPages pages have been read and the server still reports more.
func FetchAll[T any](ctx context.Context, fetch FetchFunc[T], opts Options) ([]T, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var all []T
	for n := 0; n < maxPages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := opts.FirstPage + n
		p, err := fetch(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, p.Data...)
		if opts.OnPage != nil {
			opts.OnPage(page, len(p.Data))
		}
		if !p.HasNextPage {
			if all == nil {
				all = []T{}
			}
			return all, nil
		}
	}
	return nil, fmt.Errorf("%w after %d pages", model.ErrPaginationExhausted, maxPages)
}
