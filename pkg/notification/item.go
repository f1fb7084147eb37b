// Package notification defines the notification item, the wire format of the
// notifications API and an in-memory backend that serves it.
package notification

import "time"

// Item is a single notification row.
type Item struct {
	ID        string    `json:"id_notification"`
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
}

// PageData is one page of notifications.
type PageData struct {
	Items      []Item `json:"items"`
	TotalItems int    `json:"total_items"`
	TotalPages int    `json:"total_pages"`
}

// Response is the body of GET /v1/notifications.
type Response struct {
	Page           PageData `json:"page"`
	NotViewedCount int      `json:"not_viewed_count"`
}
