// Package ingest turns documents into posting rows. Documents arrive as
// Kafka events on the ingest topic or, for small deployments, directly over
// HTTP.
package ingest

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
)

const (
	maxTitleLength = 1024
	maxBodyLength  = 1048576
	maxURLLength   = 2048
)

// IngestEvent is the payload of the document ingest topic.
type IngestEvent struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Keywords   []string  `json:"keywords,omitempty"`
	Body       string    `json:"body"`
	IngestedAt time.Time `json:"ingested_at"`
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// Validate checks the fields a posting group is built from. The packed
// document identifier uses "[ ]" as its delimiter, so no field may contain
// it.
func Validate(ev *IngestEvent) error {
	errs := make(map[string]string)

	switch u, err := url.Parse(ev.URL); {
	case strings.TrimSpace(ev.URL) == "":
		errs["url"] = "url is required"
	case err != nil || u.Host == "":
		errs["url"] = "url must be absolute"
	case len(ev.URL) > maxURLLength:
		errs["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	}
	if len(ev.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	body := strings.TrimSpace(ev.Body)
	if body == "" {
		errs["body"] = "body is required and must not be empty"
	} else if len(body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
	fields := append([]string{ev.URL, ev.Title}, ev.Keywords...)
	for _, f := range fields {
		if strings.Contains(f, posting.FieldDelimiter) {
			errs["document"] = fmt.Sprintf("fields must not contain %q", posting.FieldDelimiter)
			break
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func (ev *IngestEvent) document() posting.Document {
	return posting.Document{
		ID:   posting.DocumentID{URL: ev.URL, Title: ev.Title, Keywords: ev.Keywords},
		Body: ev.Body,
	}
}
