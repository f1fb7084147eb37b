// Package pagination adapts a page-numbered backend to the row loader.
//
// The loader asks for a window [Start, Stop] together with the page
// Start/PageSize+1 of size PageSize. That page only begins at Start when
// Start is a multiple of PageSize. With Align set the adapter instead
// fetches every backend page of size PageSize that overlaps
// [Start, Start+PageSize) and slices the result so Items[0] is row Start:
//
//	Start=15, PageSize=10  ->  pages 2 and 3, items 5..14 of their union
//
// Pages are fetched concurrently through an errgroup bounded by
// MaxConcurrency. Each page request gets its own Timeout.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig("http://localhost:8080", "app/1.0"))
//	adapter := pagination.NewAdapter[notification.Item](c, pagination.DefaultConfig())
//	ld, _ := loader.New[notification.Item](adapter, loader.DefaultConfig())
package pagination
