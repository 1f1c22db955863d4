package middleware

import "net/http"

// Chain wraps h in the given middleware. The first middleware listed is the
// outermost wrapper, so it sees the request first and the response last.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
