package executor

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Shape checks for ui-mdx documents. A document is accepted when it contains
// at least one HTML/JSX-like tag, a markdown heading, a list marker, or a
// fenced code block.
var (
	tagPattern     = regexp.MustCompile(`<[A-Za-z][A-Za-z0-9]*[^>]*>`)
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s`)
	listPattern    = regexp.MustCompile(`(?m)^\s*[*-]\s`)
)

// DocumentExecutor validates ui-mdx snippets. It never evaluates anything —
// this is a lightweight shape check — and on acceptance returns a fixed
// message rather than echoing parsed output.
type DocumentExecutor struct{}

// NewDocumentExecutor creates a document validator.
func NewDocumentExecutor() *DocumentExecutor {
	return &DocumentExecutor{}
}

// Execute checks the document's shape.
func (e *DocumentExecutor) Execute(_ context.Context, code string) ExecutionResult {
	start := time.Now()

	if strings.TrimSpace(code) == "" {
		return failure("document must not be empty", time.Since(start).Milliseconds())
	}

	valid := tagPattern.MatchString(code) ||
		headingPattern.MatchString(code) ||
		listPattern.MatchString(code) ||
		strings.Contains(code, "```")

	if !valid {
		return failure("document must contain at least one element (tag, heading, list or code fence)", time.Since(start).Milliseconds())
	}

	return ExecutionResult{Success: true, Result: "document validated successfully", ExecutionTime: time.Since(start).Milliseconds()}
}
