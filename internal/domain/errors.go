package domain

import "errors"

var (
	// ErrAuthInvalid is returned when a host token fails verification.
	ErrAuthInvalid = errors.New("invalid host credentials")
	// ErrRoomNotFound is returned when a room code is unknown or expired.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a player joins a room at capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrDuplicateHost is returned when a host slot is already taken.
	ErrDuplicateHost = errors.New("room already has a host")
	// ErrNotHost is returned when a non-host issues a host command.
	ErrNotHost = errors.New("only the host may do that")
	// ErrWrongRole is returned when a command is invalid for the caller's role.
	ErrWrongRole = errors.New("command not allowed for this role")
	// ErrAlreadyStarted is returned when start is issued outside WAITING.
	ErrAlreadyStarted = errors.New("quiz already started")
	// ErrAlreadyAnswered is returned on a second answer for the same question.
	ErrAlreadyAnswered = errors.New("answer already recorded")
	// ErrQuestionClosed is returned for answers past the deadline or with no open question.
	ErrQuestionClosed = errors.New("question is closed")
	// ErrNotInRoom is returned when the participant is absent from the roster.
	ErrNotInRoom = errors.New("participant not in room")
	// ErrCapacityExceeded is returned when the active room cap is reached.
	ErrCapacityExceeded = errors.New("maximum number of rooms reached")
	// ErrRateLimited is returned when a source address exceeds its quota.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrMalformedMessage is returned for unknown or unparsable message kinds.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCollaboratorUnavailable wraps failures of external stores/verifiers.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrRoomClosed is returned when commands race room teardown.
	ErrRoomClosed = errors.New("room is closed")
)

// ErrorCode maps an engine error to its wire code. Unknown errors are
// reported as Internal so collaborator details never leak to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthInvalid):
		return "AuthInvalid"
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrRoomFull):
		return "RoomFull"
	case errors.Is(err, ErrDuplicateHost):
		return "DuplicateHost"
	case errors.Is(err, ErrNotHost):
		return "NotHost"
	case errors.Is(err, ErrWrongRole):
		return "WrongRole"
	case errors.Is(err, ErrAlreadyStarted):
		return "AlreadyStarted"
	case errors.Is(err, ErrAlreadyAnswered):
		return "AlreadyAnswered"
	case errors.Is(err, ErrQuestionClosed):
		return "QuestionClosed"
	case errors.Is(err, ErrNotInRoom):
		return "NotInRoom"
	case errors.Is(err, ErrCapacityExceeded):
		return "CapacityExceeded"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrMalformedMessage):
		return "MalformedMessage"
	case errors.Is(err, ErrQuizNotFound):
		return "QuizNotFound"
	case errors.Is(err, ErrCollaboratorUnavailable):
		return "CollaboratorUnavailable"
	case errors.Is(err, ErrRoomClosed):
		return "RoomClosed"
	default:
		return "Internal"
	}
}
