package reqid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header carries a caller supplied request ID.
const Header = "X-Request-ID"

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(parent, key{}, id), id
}

// FromRequest stores the ID from r's X-Request-ID header in r's context,
// generating one when the header is missing or too long.
func FromRequest(r *http.Request) (context.Context, string) {
	if id := r.Header.Get(Header); id != "" && len(id) <= 128 {
		return context.WithValue(r.Context(), key{}, id), id
	}
	return NewContext(r.Context())
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(key{})
	id, ok := v.(string)
	return id, ok
}
