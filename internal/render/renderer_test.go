package render

import (
	"context"
	"strings"
	"testing"
)

func TestPlaceholderRendererSubstitutes(t *testing.T) {
	t.Parallel()

	r := NewPlaceholderRenderer()
	rendered, err := r.Render(context.Background(),
		"Reminder: {{course_name}}",
		"Hi {{user_name}}, {{ course_name }} starts soon.",
		map[string]string{"user_name": "Ada", "course_name": "Algebra"},
	)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if rendered.Subject != "Reminder: Algebra" {
		t.Errorf("subject = %q", rendered.Subject)
	}
	if rendered.Content != "Hi Ada, Algebra starts soon." {
		t.Errorf("content = %q", rendered.Content)
	}
}

func TestPlaceholderRendererMissingVariable(t *testing.T) {
	t.Parallel()

	r := NewPlaceholderRenderer()
	_, err := r.Render(context.Background(), "", "Hi {{user_name}}", nil)
	if err == nil {
		t.Fatal("missing variable should error")
	}
	if !strings.Contains(err.Error(), "user_name") {
		t.Errorf("error should name the missing variable, got %v", err)
	}
}

func TestPlaceholderRendererNoPlaceholders(t *testing.T) {
	t.Parallel()

	r := NewPlaceholderRenderer()
	rendered, err := r.Render(context.Background(), "Plain", "No variables here.", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if rendered.Content != "No variables here." {
		t.Errorf("content = %q", rendered.Content)
	}
}
