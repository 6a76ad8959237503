package reqid

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %s from context, got %s ok=%v", id, got, ok)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid, got %q: %v", id, err)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(Header, "abc-123")
	ctx, id := FromRequest(r)
	if id != "abc-123" {
		t.Fatalf("expected header id, got %q", id)
	}
	if got, _ := FromContext(ctx); got != "abc-123" {
		t.Fatalf("context id %q", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set(Header, strings.Repeat("x", 200))
	if _, id := FromRequest(r); len(id) != 36 {
		t.Fatalf("expected generated id for oversized header, got %q", id)
	}
}
