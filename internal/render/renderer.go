// Package render defines the template rendering port. Rendering happens once
// at dispatch time; the result is snapshotted onto the delivery.
package render

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Rendered is a final subject/content pair ready for transport.
type Rendered struct {
	Subject string
	Content string
}

// Renderer merges a variable map into raw template content. Implementations
// must fail when a referenced variable is missing; the dispatcher isolates
// such failures per recipient.
type Renderer interface {
	Render(ctx context.Context, subject, body string, variables map[string]string) (*Rendered, error)
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// PlaceholderRenderer substitutes {{name}} placeholders from the variable
// map. It is the bundled default; a real rendering engine can replace it
// behind the Renderer port.
type PlaceholderRenderer struct{}

func NewPlaceholderRenderer() *PlaceholderRenderer {
	return &PlaceholderRenderer{}
}

func (r *PlaceholderRenderer) Render(_ context.Context, subject, body string, variables map[string]string) (*Rendered, error) {
	renderedSubject, err := substitute(subject, variables)
	if err != nil {
		return nil, err
	}
	renderedBody, err := substitute(body, variables)
	if err != nil {
		return nil, err
	}

	return &Rendered{Subject: renderedSubject, Content: renderedBody}, nil
}

func substitute(raw string, variables map[string]string) (string, error) {
	var missing []string

	result := placeholderPattern.ReplaceAllStringFunc(raw, func(match string) string {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		value, ok := variables[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return result, nil
}
