package ai

import "errors"

var (
	// ErrProviderUnavailable indicates the backing AI service could not be
	// reached or refused the request (transport failure, timeout, quota).
	ErrProviderUnavailable = errors.New("ai provider unavailable")

	// ErrMalformedResponse indicates the service answered but the payload
	// was unusable (empty result, wrong count, dimension mismatch).
	ErrMalformedResponse = errors.New("malformed ai response")
)
