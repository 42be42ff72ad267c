// Package notify announces newly saved result sheets to downstream consumers.
package notify

import (
	"context"
	"time"
)

// Message is published once per artifact created by a scrape job.
type Message struct {
	JobID     string    `json:"job_id"`
	USN       string    `json:"usn"`
	Branch    string    `json:"branch"`
	Year      string    `json:"year"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers artifact notifications. It returns the broker message ID.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (string, error)
}

// Nop drops every message.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Message) (string, error) {
	return "", nil
}
