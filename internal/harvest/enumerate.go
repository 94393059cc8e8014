package harvest

import (
	"context"
	"fmt"

	"github.com/teemow/inboxharvest/internal/query"
)

const (
	// MaxPageSize is the largest page the Gmail list call accepts.
	MaxPageSize = 500

	// DefaultPageSize is used when no page size is configured.
	DefaultPageSize = MaxPageSize
)

// clampPageSize keeps pageSize within [1, MaxPageSize]; zero or negative
// values fall back to DefaultPageSize.
func clampPageSize(pageSize int) int {
	switch {
	case pageSize <= 0:
		return DefaultPageSize
	case pageSize > MaxPageSize:
		return MaxPageSize
	default:
		return pageSize
	}
}

// Enumerate lists every message matching filter, following continuation
// cursors until the service reports no further page. The result preserves
// service order. On any page failure the partial result is discarded.
func Enumerate(ctx context.Context, svc Lister, filter query.SearchFilter, pageSize int) ([]MessageRef, error) {
	return EnumerateLimit(ctx, svc, filter, pageSize, 0)
}

// EnumerateLimit is Enumerate with an upper bound on the number of refs.
// A limit of zero or less means unlimited.
func EnumerateLimit(ctx context.Context, svc Lister, filter query.SearchFilter, pageSize, limit int) ([]MessageRef, error) {
	pageSize = clampPageSize(pageSize)
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	var refs []MessageRef
	seen := make(map[string]bool)
	cursor := ""

	for {
		page, err := svc.ListMessages(ctx, filter.String(), pageSize, cursor)
		if err != nil {
			return nil, serviceError("list", err)
		}

		for _, id := range page.IDs {
			refs = append(refs, MessageRef{ID: id})
			if limit > 0 && len(refs) >= limit {
				return refs, nil
			}
		}

		if page.NextCursor == "" {
			return refs, nil
		}
		if seen[page.NextCursor] {
			return nil, &TransientServiceError{
				Op:  "list",
				Err: fmt.Errorf("service repeated page cursor %q", page.NextCursor),
			}
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}
