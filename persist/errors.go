package persist

import "errors"

var (
	// ErrInvalidEnvelope indicates a sealed snapshot that failed
	// verification: bad signature, wrong algorithm, wrong issuer, or expired.
	ErrInvalidEnvelope = errors.New("persist: invalid envelope")

	// ErrMissingKey indicates Seal or Open without a signing key.
	ErrMissingKey = errors.New("persist: signing key is empty")

	// ErrDecode indicates bytes that are not a snapshot.
	ErrDecode = errors.New("persist: malformed snapshot")
)
