package bridge

import "errors"

var (
	// ErrMissingSecret is returned when no webhook signing secret is configured
	ErrMissingSecret = errors.New("webhook secret not configured")

	// ErrBadSignature is returned when the webhook signature does not match the payload
	ErrBadSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent is returned when a correctly signed payload cannot be parsed
	ErrMalformedEvent = errors.New("malformed webhook event")

	// ErrMappingNotFound is returned when a price has no configured entitlement
	ErrMappingNotFound = errors.New("no entitlement mapped to price")

	// ErrMemberIDMissing is returned when a purchase carries no usable member id
	ErrMemberIDMissing = errors.New("member id missing from event metadata")

	// ErrPriceNotFound is returned when no price id can be read from an event
	ErrPriceNotFound = errors.New("price id not found on event")

	// ErrCommunityNotFound is returned when the configured community cannot be resolved
	ErrCommunityNotFound = errors.New("community not found")

	// ErrMemberNotFound is returned when a member is absent even after a directory refresh
	ErrMemberNotFound = errors.New("member not found")

	// ErrRoleNotFound is returned when the mapped role does not exist in the community
	ErrRoleNotFound = errors.New("role not found")

	// ErrAuthorityDenied is returned when the acting agent cannot manage the role
	ErrAuthorityDenied = errors.New("agent lacks authority to manage role")

	// ErrDirectoryOperation is returned when a grant or revoke call fails
	ErrDirectoryOperation = errors.New("directory operation failed")

	// ErrPersistence is returned when the ledger store fails
	ErrPersistence = errors.New("ledger persistence failed")

	// ErrLedgerRowNotFound is returned when no ledger row exists for a subscription
	ErrLedgerRowNotFound = errors.New("ledger row not found")

	// ErrLedgerRowExists is returned when a row for the subscription is already recorded
	ErrLedgerRowExists = errors.New("ledger row already exists")
)

// IsVerificationError reports whether err means the inbound payload itself
// could not be trusted or read. Only these map to a non-2xx webhook response.
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrMissingSecret) ||
		errors.Is(err, ErrBadSignature) ||
		errors.Is(err, ErrMalformedEvent)
}
