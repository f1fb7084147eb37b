package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTTL is the freshness of a page whose response carries no usable
// Expires header. It matches the notifications API's default.
const DefaultTTL = 30 * time.Second

// ErrNotCacheable is returned for responses that are not a page body.
var ErrNotCacheable = errors.New("response is not a cacheable page")

// Pages are validated by ETag only. The notifications API derives the ETag
// from the page coordinates and the list totals and sends no Last-Modified.

// ResponseToEntry reads a 200 page response into an entry. The body is
// restored so the caller can still decode it.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrNotCacheable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNotCacheable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := time.Now()
	return &CacheEntry{
		Data:        body,
		ETag:        resp.Header.Get("ETag"),
		Expires:     parseExpires(resp.Header, now),
		ContentType: resp.Header.Get("Content-Type"),
		CachedAt:    now,
	}, nil
}

// ParseExpires returns when a page sent with headers goes stale. A missing or
// malformed Expires header yields now + DefaultTTL; a time in the past
// yields now.
func ParseExpires(headers http.Header) time.Time {
	return parseExpires(headers, time.Now())
}

func parseExpires(headers http.Header, now time.Time) time.Time {
	raw := headers.Get("Expires")
	if raw == "" {
		return now.Add(DefaultTTL)
	}
	expires, err := http.ParseTime(raw)
	if err != nil {
		return now.Add(DefaultTTL)
	}
	if expires.Before(now) {
		return now
	}
	return expires
}

// ShouldMakeConditionalRequest reports whether entry can be revalidated.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	return entry != nil && entry.ETag != ""
}

// AddConditionalHeaders sets If-None-Match from the entry's ETag.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if req == nil || !ShouldMakeConditionalRequest(entry) {
		return
	}
	req.Header.Set("If-None-Match", entry.ETag)
}
