package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrUnknownCategory = errors.New("unknown queue category")
	ErrInvalidEntry    = errors.New("invalid queue entry")
	ErrInvalidPayload  = errors.New("invalid queue payload")
	ErrNotOpen         = errors.New("queue storage is not open")
	ErrSchemaDowngrade = errors.New("stored queue schema is newer than requested")
)

// Entry is one mutation the server has not acknowledged yet. It lives in
// exactly one category until a sync drain deletes it; it is never updated.
type Entry struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	AuthToken string          `json:"token,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Schema declares the physical layout of one front-end's queue database.
// Every category gets its own container; all of them are provisioned the
// first time the database is opened.
type Schema struct {
	Name       string
	Version    int
	Categories []string
	// PayloadSchemas optionally maps a category to a JSON schema its payloads must satisfy.
	PayloadSchemas map[string]string
}

var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks that the schema can be provisioned safely.
func (s Schema) Validate() error {
	if s.Name == "" {
		return errors.New("queue schema name is required")
	}
	if s.Version <= 0 {
		return fmt.Errorf("queue schema %s: version must be positive", s.Name)
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("queue schema %s: at least one category is required", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		if !categoryPattern.MatchString(c) {
			return fmt.Errorf("queue schema %s: invalid category name %q", s.Name, c)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("queue schema %s: duplicate category %q", s.Name, c)
		}
		seen[c] = struct{}{}
	}
	for c := range s.PayloadSchemas {
		if _, ok := seen[c]; !ok {
			return fmt.Errorf("queue schema %s: payload schema for undeclared category %q", s.Name, c)
		}
	}
	return nil
}

// Has reports whether category is declared.
func (s Schema) Has(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// TableName is the container name for a category.
func (s Schema) TableName(category string) string {
	return "pending_" + category
}
