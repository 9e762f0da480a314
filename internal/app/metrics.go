package app

import "sync/atomic"

// Metrics holds process-wide monotonic counters, reset only on restart.
type Metrics struct {
	Connections        atomic.Int64
	Disconnections     atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	QuestionsProcessed atomic.Int64
	AnswersProcessed   atomic.Int64
}

// MetricsSnapshot is the serializable view exposed by the health query.
type MetricsSnapshot struct {
	Connections        int64 `json:"totalConnections"`
	Disconnections     int64 `json:"disconnections"`
	MessagesSent       int64 `json:"messagesSent"`
	Errors             int64 `json:"errors"`
	QuestionsProcessed int64 `json:"questionsProcessed"`
	AnswersProcessed   int64 `json:"answersProcessed"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Connections:        m.Connections.Load(),
		Disconnections:     m.Disconnections.Load(),
		MessagesSent:       m.MessagesSent.Load(),
		Errors:             m.Errors.Load(),
		QuestionsProcessed: m.QuestionsProcessed.Load(),
		AnswersProcessed:   m.AnswersProcessed.Load(),
	}
}
