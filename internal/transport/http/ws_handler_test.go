package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.ResultStore) {
	t.Helper()
	results := memory.NewResultStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	registry := app.NewRegistry(
		app.RegistryConfig{DrainTimeout: 50 * time.Millisecond},
		quizzes,
		results,
		memory.NewStaticAuthVerifier(map[string]string{"tok": "host-1"}),
		memory.NewCodeReservations(),
		app.NewRateLimiter(1000, 1000, 1000),
		&app.Metrics{},
	)
	supervisor := app.NewSupervisor(registry, app.SupervisorConfig{})

	mux := http.NewServeMux()
	NewRESTHandler(registry, supervisor).Register(mux, NewWSHandler(registry))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	t.Cleanup(registry.Shutdown)
	return server, results
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHostAndPlayerFullGame(t *testing.T) {
	server, results := newTestServer(t)

	host := dial(t, server, "/ws/host?quizId=quiz-1&token=tok")
	created := readNext(t, host, domain.EventRoomCreated)
	roomCode, _ := created["roomCode"].(string)
	if roomCode == "" {
		t.Fatalf("expected room code in roomCreated, got %v", created)
	}
	readNext(t, host, domain.EventJoined)

	player := dial(t, server, "/ws/player?roomCode="+roomCode+"&name=Alice")
	joined := readNext(t, player, domain.EventJoined)
	if joined["roomCode"] != roomCode {
		t.Fatalf("expected player joined into %s, got %v", roomCode, joined)
	}
	readUntil(t, host, domain.EventParticipantJoined)

	if err := host.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	opened := readUntil(t, player, domain.EventQuestionOpened)
	if opened["index"].(float64) != 0 {
		t.Fatalf("expected question 0 opened, got %v", opened)
	}

	// The only player answers correctly; the question locks early.
	if err := player.WriteJSON(map[string]any{
		"type":    "submitAnswer",
		"payload": map[string]any{"option": 1},
	}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	locked := readUntil(t, player, domain.EventQuestionLocked)
	if locked["correctOption"].(float64) != 1 {
		t.Fatalf("expected correct option revealed on lock, got %v", locked)
	}
	board := locked["leaderboard"].([]any)
	top := board[0].(map[string]any)
	if top["score"].(float64) < 10 {
		t.Fatalf("expected positive mark plus bonus, got %v", top)
	}

	readUntil(t, host, domain.EventQuestionLocked)
	if err := host.WriteJSON(map[string]any{"type": "next"}); err != nil {
		t.Fatalf("next: %v", err)
	}
	finished := readUntil(t, player, domain.EventRoomFinished)
	if finished["roomCode"] != roomCode {
		t.Fatalf("expected roomFinished for %s, got %v", roomCode, finished)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(results.Results()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	saved := results.Results()
	if len(saved) != 1 || saved[0].RoomCode != roomCode {
		t.Fatalf("expected one persisted result for %s, got %+v", roomCode, saved)
	}
}

func TestPlayerJoinUnknownRoom(t *testing.T) {
	server, _ := newTestServer(t)

	conn := dial(t, server, "/ws/player?roomCode=NOPE1234&name=Bob")
	errEvent := readNext(t, conn, domain.EventError)
	if errEvent["code"] != "RoomNotFound" {
		t.Fatalf("expected RoomNotFound, got %v", errEvent)
	}
}

func TestHostInvalidToken(t *testing.T) {
	server, _ := newTestServer(t)

	conn := dial(t, server, "/ws/host?quizId=quiz-1&token=wrong")
	errEvent := readNext(t, conn, domain.EventError)
	if errEvent["code"] != "AuthInvalid" {
		t.Fatalf("expected AuthInvalid, got %v", errEvent)
	}
}

func TestPlayerBadRequests(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{
		"/ws/player?roomCode=ROOM1234",                // missing name
		"/ws/player?name=Alice",                       // missing room code
		"/ws/player?roomCode=R&name=" + longName(25),  // name too long
		"/ws/player?roomCode=ROOM1234&name=%20%20%20", // blank name
	} {
		u := "ws" + server.URL[len("http"):] + path
		_, resp, err := websocket.DefaultDialer.Dial(u, nil)
		if err == nil {
			t.Fatalf("expected %s rejected", path)
		}
		if resp == nil || resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %v", path, resp)
		}
	}
}

func TestMalformedFrameReportsError(t *testing.T) {
	server, _ := newTestServer(t)

	host := dial(t, server, "/ws/host?quizId=quiz-1&token=tok")
	created := readNext(t, host, domain.EventRoomCreated)
	roomCode := created["roomCode"].(string)
	readNext(t, host, domain.EventJoined)

	player := dial(t, server, "/ws/player?roomCode="+roomCode+"&name=Alice")
	readNext(t, player, domain.EventJoined)

	if err := player.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	errEvent := readUntil(t, player, domain.EventError)
	if errEvent["code"] != "MalformedMessage" {
		t.Fatalf("expected MalformedMessage, got %v", errEvent)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) map[string]any {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Payload
}

// readUntil skips roster churn and pings until the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func longName(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					PositiveMark: 10,
					NegativeMark: 5,
					TimeLimitSec: 30,
				},
			},
		},
	}
}
