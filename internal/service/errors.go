package service

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrNotParticipant       = errors.New("you are not a participant in this room")
	ErrNotRoomAdmin         = errors.New("only a room admin can manage members")
	ErrNotMultiMember       = errors.New("members can only be managed in firm rooms")
	ErrCannotRemoveClient   = errors.New("the client cannot be removed from the room")
	ErrCannotRemoveAdmin    = errors.New("an admin participant cannot be removed")
	ErrMemberNotEligible    = errors.New("user is not a member of the firm")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrRoomInactive         = errors.New("this room is no longer active")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingAccessDenied  = errors.New("you do not have access to this booking")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidToken         = errors.New("invalid or expired token")
)

// ValidationError is a client input error. Its message is safe to show.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
