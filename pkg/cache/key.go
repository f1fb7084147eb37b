package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix starts every key written by the cache manager.
const KeyPrefix = "notify"

// CacheKey identifies one cached page of a paginated endpoint.
type CacheKey struct {
	// Endpoint is the collection path, e.g. "/v1/notifications".
	Endpoint string

	// Page is the 1-based page number, 0 when the endpoint is not paginated.
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// QueryParams holds any further query parameters.
	QueryParams url.Values
}

// PageKey returns the key of one page of endpoint.
func PageKey(endpoint string, page, pageSize int) CacheKey {
	return CacheKey{Endpoint: endpoint, Page: page, PageSize: pageSize}
}

// EndpointPattern returns a Redis match pattern for every key of endpoint.
func EndpointPattern(endpoint string) string {
	return CacheKey{Endpoint: endpoint}.String() + ":*"
}

// String generates a deterministic cache key string.
//
// Format: notify:endpoint:page=N:page_size=M:query1=val1
//
//	notify:v1/notifications:page=3:page_size=10
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if k.Page > 0 {
		parts = append(parts, fmt.Sprintf("page=%d", k.Page))
	}
	if k.PageSize > 0 {
		parts = append(parts, fmt.Sprintf("page_size=%d", k.PageSize))
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			if key == "page" || key == "page_size" {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
