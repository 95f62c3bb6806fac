package invite

import "errors"

var (
	// ErrInvalidEmail is returned when the requester email is malformed.
	ErrInvalidEmail = errors.New("invalid email address format")
	// ErrRateLimited is returned when the email requested a code within the cooldown.
	ErrRateLimited = errors.New("please wait 5 minutes before requesting another invite code")
	// ErrDispatchFailed is returned when the notification could not be delivered.
	// The issued code stays redeemable.
	ErrDispatchFailed = errors.New("failed to send email, please try again later")
	// ErrNotFound is returned when no invite exists for a code.
	ErrNotFound = errors.New("invalid invite code")
	// ErrAlreadyUsed is returned when the invite has been redeemed before.
	ErrAlreadyUsed = errors.New("this invite code has already been used")
	// ErrExpired is returned when an unredeemed invite is past its expiry.
	ErrExpired = errors.New("this invite code has expired")
	// ErrCodeSpaceExhausted is returned when no unique code could be generated.
	ErrCodeSpaceExhausted = errors.New("unable to generate a unique invite code")
)

const internalMessage = "Internal server error. Please try again later."

var public = []struct {
	err     error
	message string
}{
	{ErrInvalidEmail, "Invalid email address format"},
	{ErrRateLimited, "Please wait 5 minutes before requesting another invite code"},
	{ErrDispatchFailed, "Failed to send email. Please try again later."},
	{ErrNotFound, "Invalid invite code"},
	{ErrAlreadyUsed, "This invite code has already been used"},
	{ErrExpired, "This invite code has expired"},
}

// Message returns the user-facing text for err. Errors outside the registry
// taxonomy collapse to a generic internal error message.
func Message(err error) string {
	for _, known := range public {
		if errors.Is(err, known.err) {
			return known.message
		}
	}
	return internalMessage
}
