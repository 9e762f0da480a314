package domain

import "time"

// Role distinguishes the single control connection from passive players.
type Role string

const (
	RoleHost   Role = "HOST"
	RolePlayer Role = "PLAYER"
)

// RoomStatus is the room state machine position.
type RoomStatus string

const (
	// StatusWaiting: room open, host has not started the quiz.
	StatusWaiting RoomStatus = "WAITING"
	// StatusQuestionActive: a question is open and accepting answers.
	StatusQuestionActive RoomStatus = "QUESTION_ACTIVE"
	// StatusQuestionLocked: the deadline passed, results are out, waiting on next.
	StatusQuestionLocked RoomStatus = "QUESTION_LOCKED"
	// StatusFinished: terminal.
	StatusFinished RoomStatus = "FINISHED"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
// Zero marks and time limits are normalized by Quiz.Normalize.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []Option `json:"options"`
	PositiveMark int      `json:"positiveMark"`
	NegativeMark int      `json:"negativeMark"`
	TimeLimitSec int      `json:"timeLimitSec"`
}

// TimeLimit returns the question's answer window as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSec) * time.Second
}

// CorrectOption returns the index of the correct option, or -1.
func (q Question) CorrectOption() int {
	for i, opt := range q.Options {
		if opt.Correct {
			return i
		}
	}
	return -1
}

// Quiz is an ordered collection of questions, immutable once fetched.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

const (
	DefaultPositiveMark = 10
	DefaultTimeLimitSec = 30
)

// Normalize fills in defaults for unset marks and time limits.
func (q Quiz) Normalize() Quiz {
	for i := range q.Questions {
		if q.Questions[i].PositiveMark == 0 {
			q.Questions[i].PositiveMark = DefaultPositiveMark
		}
		if q.Questions[i].TimeLimitSec == 0 {
			q.Questions[i].TimeLimitSec = DefaultTimeLimitSec
		}
	}
	return q
}

// Participant is a roster entry. It outlives any single connection: the
// entry and its score survive handle churn so a reconnect under the same
// identity resumes rather than restarts.
type Participant struct {
	ID          string    `json:"participantId"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// Answer records a participant's first (and only) submission for a question.
type Answer struct {
	ParticipantID string    `json:"participantId"`
	QuestionIndex int       `json:"questionIndex"`
	Option        int       `json:"option"`
	Correct       bool      `json:"correct"`
	ElapsedMs     int64     `json:"elapsedMs"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// LeaderboardEntry is one ranked row of the scoreboard.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
}

// RoomResult is the per-participant tuple handed to the result store when a
// room finishes.
type RoomResult struct {
	RoomCode      string    `json:"roomCode"`
	QuizID        string    `json:"quizId"`
	ParticipantID string    `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	Score         int       `json:"score"`
	Answers       []Answer  `json:"answers"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// RoomInfo answers the room validation query.
type RoomInfo struct {
	RoomCode    string `json:"roomCode"`
	Joinable    bool   `json:"joinable"`
	PlayerCount int    `json:"playerCount"`
}

// RoomStats answers the room stats query.
type RoomStats struct {
	RoomCode     string        `json:"roomCode"`
	Status       RoomStatus    `json:"status"`
	PlayerCount  int           `json:"playerCount"`
	CurrentIndex int           `json:"currentIndex"`
	Age          time.Duration `json:"ageMs"`
}
