package relay

import "errors"

var (
	// ErrBadCredential indicates the first client frame could not be read as a token.
	ErrBadCredential = errors.New("invalid credential frame")
	// ErrBadTrigger indicates a trigger body that fails the closed decode.
	ErrBadTrigger = errors.New("invalid trigger")
	// ErrBadFrame indicates a post-auth client frame that is not valid JSON.
	ErrBadFrame = errors.New("invalid frame")
)
