package driven

import "context"

// TokenProvider supplies access tokens for Microsoft Graph requests.
// Implementations own token acquisition, caching and refresh; callers
// just ask for a token that is valid right now.
type TokenProvider interface {
	// GetToken returns a valid access token, acquiring or refreshing
	// one if necessary.
	GetToken(ctx context.Context) (string, error)

	// IsAuthenticated reports whether a token is currently available
	// without triggering a network exchange.
	IsAuthenticated() bool
}
