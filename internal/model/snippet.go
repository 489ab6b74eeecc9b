// Package model defines the domain types and input validation shared by the
// storage, console and server layers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SnippetKind identifies the executor a snippet's code is dispatched to.
type SnippetKind string

const (
	KindTaskJS    SnippetKind = "task-js"
	KindReportSQL SnippetKind = "report-sql"
	KindUIMDX     SnippetKind = "ui-mdx"
)

// ValidKind reports whether k is a member of the closed kind enum.
func ValidKind(k SnippetKind) bool {
	switch k {
	case KindTaskJS, KindReportSQL, KindUIMDX:
		return true
	}
	return false
}

// MinTitleLen is the minimum length of a snippet title after trimming.
const MinTitleLen = 3

// Snippet is a stored, versioned code artifact of a fixed kind.
// Version starts at 1 and is incremented on every update; the increment is
// the only mutation a snippet undergoes.
type Snippet struct {
	ID        uuid.UUID   `json:"id"`
	Title     string      `json:"title"`
	Kind      SnippetKind `json:"kind"`
	Code      string      `json:"code"`
	Version   int         `json:"version"`
	CreatedBy uuid.UUID   `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SnippetInput is the create/update request payload for a snippet.
type SnippetInput struct {
	Title string      `json:"title"`
	Kind  SnippetKind `json:"kind"`
	Code  string      `json:"code"`
}

// Validate checks the input and returns it with title and code trimmed.
func (in SnippetInput) Validate() (SnippetInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Code = strings.TrimSpace(in.Code)

	if len(in.Title) < MinTitleLen {
		return in, fmt.Errorf("title must be at least %d characters", MinTitleLen)
	}
	if !ValidKind(in.Kind) {
		return in, fmt.Errorf("invalid snippet kind %q", in.Kind)
	}
	if in.Code == "" {
		return in, fmt.Errorf("code must not be empty")
	}
	return in, nil
}
