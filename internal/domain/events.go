package domain

import "time"

// Event kinds pushed to connected sockets. Every participant in a room
// observes these in the same relative order.
const (
	EventRoomCreated       = "roomCreated"
	EventJoined            = "joined"
	EventParticipantJoined = "participantJoined"
	EventParticipantLeft   = "participantLeft"
	EventQuestionOpened    = "questionOpened"
	EventQuestionLocked    = "questionLocked"
	EventRoomFinished      = "roomFinished"
	EventPing              = "ping"
	EventError             = "error"
)

// Inbound message kinds accepted from sockets.
const (
	MessageStart  = "start"
	MessageNext   = "next"
	MessageAnswer = "submitAnswer"
	MessagePong   = "pong"
)

// Event is the outbound wire envelope.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type RoomCreatedPayload struct {
	RoomCode string `json:"roomCode"`
	QuizID   string `json:"quizId"`
}

type JoinedPayload struct {
	RoomCode      string     `json:"roomCode"`
	ParticipantID string     `json:"participantId"`
	Role          Role       `json:"role"`
	Status        RoomStatus `json:"status"`
	PlayerCount   int        `json:"playerCount"`
	// Current question re-sync for reconnecting participants; nil in WAITING.
	Question *QuestionOpenedPayload `json:"question,omitempty"`
}

type ParticipantPayload struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	PlayerCount   int    `json:"playerCount"`
}

// QuestionOpenedPayload never includes the correct option; hosts learn it
// only when the question locks.
type QuestionOpenedPayload struct {
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Prompt   string    `json:"prompt"`
	Options  []string  `json:"options"`
	Deadline time.Time `json:"deadline"`
}

type QuestionLockedPayload struct {
	Index         int                `json:"index"`
	CorrectOption int                `json:"correctOption"`
	AnswerCount   int                `json:"answerCount"`
	CorrectCount  int                `json:"correctCount"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	MoreQuestions bool               `json:"moreQuestions"`
}

type RoomFinishedPayload struct {
	RoomCode    string             `json:"roomCode"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type PingPayload struct {
	SentAt time.Time `json:"sentAt"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent wraps an engine error into its wire form.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Code: ErrorCode(err), Message: err.Error()}}
}
