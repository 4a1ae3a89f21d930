package middleware

import (
	"context"
	"net/http"
)

// ActorHeader identifies the user making the request. Authentication proper
// is handled upstream; the service layer only needs to know who is acting so
// it can enforce role checks against the booking's rider and passenger.
const ActorHeader = "X-Actor-ID"

type actorKey struct{}

// Actor extracts the acting user's ID from the request header into context.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(ActorHeader); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), actorKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

// ActorID returns the acting user's ID from context, or "" if the request
// carried no actor header.
func ActorID(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
