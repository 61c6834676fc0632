package promo

import "errors"

// Error taxonomy for upstream promo site calls. Wrapped values carry the
// HTTP status or decode detail; callers match with errors.Is.
var (
	// ErrUpstreamUnavailable indicates a non-success HTTP status from the site.
	ErrUpstreamUnavailable = errors.New("promo: upstream unavailable")
	// ErrTokenNotFound indicates the root page lacks the csrf-token marker.
	ErrTokenNotFound = errors.New("promo: csrf token not found")
	// ErrMalformedResponse indicates a body that does not parse as expected.
	ErrMalformedResponse = errors.New("promo: malformed response")
	// ErrClaimRejected indicates the site reported a logical claim failure.
	ErrClaimRejected = errors.New("promo: claim rejected")
)
