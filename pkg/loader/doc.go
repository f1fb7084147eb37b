// Package loader implements the windowed lazy-loading row cache behind a
// virtually scrolled list.
//
// A viewport asks the loader to ensure a window of row indices is loaded.
// The loader marks the window pending in its sparse row store, asks a
// Fetcher for the matching page and merges the response back when it
// arrives, in whatever order responses complete.
//
// Example usage:
//
//	ld, err := loader.New[notification.Item](fetcher, loader.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer ld.Close()
//
//	if !ld.IsRowLoaded(42) {
//		h, _ := ld.EnsureLoaded(40, 49)
//		<-h.Done()
//	}
//
// Batching:
//   - page size = max(stop-start+1, MinimumBatchSize)
//   - page number = start/pageSize + 1 (1-based)
//
// The page number is only correct when every window starts on a multiple of
// its batch size; pagination.Adapter with Align enabled fetches by offset
// instead and removes that restriction.
//
// Failure handling:
//   - a failed fetch moves its rows to rowstore.Failed
//   - failed rows report IsRowLoaded == false, so the next viewport pass
//     retries them
//   - cancelled requests (Handle.Cancel, Reset, Close) return their rows to
//     Unknown and drop any late response
package loader
