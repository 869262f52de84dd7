// Package errs contains the domain error type shared across layers.
// Handlers map Kind to an HTTP status and surface Reason to clients,
// so 409s are distinguishable without parsing free text.
package errs

import "fmt"

// Kind classifies a domain error.
type Kind int

const (
	KindValidation Kind = iota // malformed or out-of-range input
	KindAuthentication         // missing or invalid credentials
	KindAuthorization          // caller lacks rights over the resource
	KindNotFound               // unknown id
	KindConflict               // an invariant would be violated
	KindUnavailable            // transient store failure, caller may retry
)

// Stable reason codes. These must not change across versions.
const (
	ReasonInvalidInput          = "invalid_input"
	ReasonInvalidCredentials    = "invalid_credentials"
	ReasonEmailTaken            = "email_taken"
	ReasonNotOwner              = "not_owner"
	ReasonNotRequester          = "not_requester"
	ReasonOwnListing            = "own_listing"
	ReasonItemClosed            = "item_closed"
	ReasonListingExpired        = "listing_expired"
	ReasonAlreadyDecided        = "already_decided"
	ReasonDuplicateRequest      = "duplicate_request"
	ReasonAcceptedRequestExists = "accepted_request_exists"
	ReasonVersionConflict       = "version_conflict"
	ReasonNotFound              = "not_found"
	ReasonStoreUnavailable      = "store_unavailable"
)

// Error is a domain error with a stable machine-readable reason.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(reason, message string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: message}
}

// Authentication returns a KindAuthentication error.
func Authentication(reason, message string) *Error {
	return &Error{Kind: KindAuthentication, Reason: reason, Message: message}
}

// Authorization returns a KindAuthorization error.
func Authorization(reason, message string) *Error {
	return &Error{Kind: KindAuthorization, Reason: reason, Message: message}
}

// NotFound returns a KindNotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Reason: ReasonNotFound, Message: message}
}

// Conflict returns a KindConflict error.
func Conflict(reason, message string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message}
}

// Unavailable wraps a transient store error. The core never retries;
// the caller or transport layer decides.
func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Reason: ReasonStoreUnavailable, Message: "store unavailable", Err: err}
}
