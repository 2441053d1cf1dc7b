package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks transport failures. Never retried within a firing.
	ErrNetwork = errors.New("network error")
	// ErrUpstreamData marks a query that returned no or invalid data.
	ErrUpstreamData = errors.New("upstream returned no or invalid data")
	// ErrUpstreamRejected marks a request the remote service refused.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrSessionUnavailable means no usable access token exists for the user.
	ErrSessionUnavailable = errors.New("session unavailable")
	// ErrRefreshUnavailable means the token expired and no refresh token is stored.
	ErrRefreshUnavailable = fmt.Errorf("%w: no refresh token stored", ErrSessionUnavailable)
	// ErrNoEligibleContent means there is nothing to post for this firing.
	ErrNoEligibleContent = errors.New("no eligible content")
	ErrFeedUnavailable   = errors.New("feed unavailable")
	ErrFeedParse         = errors.New("feed parse error")
	ErrMediaUnavailable  = errors.New("media unavailable")
	ErrNotFound          = errors.New("not found")
)
