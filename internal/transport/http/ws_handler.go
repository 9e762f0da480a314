package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

const maxDisplayNameLen = 20

// WSHandler upgrades HTTP requests to websockets and routes every frame to
// the owning room's command loop.
type WSHandler struct {
	registry *app.Registry
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *app.Registry) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option int `json:"option"`
}

// ServeHost handles the authenticated control connection. Without a
// roomCode it creates a fresh room; with one it reconnects the host to an
// existing room.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	token := r.URL.Query().Get("token")
	roomCode := r.URL.Query().Get("roomCode")
	if token == "" || (quizID == "" && roomCode == "") {
		http.Error(w, "missing quizId or token", http.StatusBadRequest)
		return
	}
	addr := clientAddr(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	var ctrl *app.Controller
	var handle *app.Handle
	created := false

	if roomCode == "" {
		newCtrl, hostID, err := h.registry.CreateRoom(r.Context(), quizID, token, addr)
		if err != nil {
			closeWithError(conn, err)
			return
		}
		roomCode = newCtrl.Code()
		created = true
		ctrl, handle, err = h.registry.JoinRoom(r.Context(), roomCode, app.AttachRequest{
			ParticipantID: hostID,
			DisplayName:   "Host",
			Role:          domain.RoleHost,
			Addr:          addr,
		})
		if err != nil {
			h.registry.RemoveRoom(roomCode)
			closeWithError(conn, err)
			return
		}
	} else {
		hostID, err := h.registry.VerifyHost(r.Context(), token)
		if err != nil {
			closeWithError(conn, err)
			return
		}
		ctrl, handle, err = h.registry.JoinRoom(r.Context(), roomCode, app.AttachRequest{
			ParticipantID: hostID,
			DisplayName:   "Host",
			Role:          domain.RoleHost,
			Addr:          addr,
		})
		if err != nil {
			closeWithError(conn, err)
			return
		}
	}

	// The writer pump has not started yet, so a direct write here is safe
	// and guaranteed to be the first frame the host sees.
	if created {
		if err := conn.WriteJSON(domain.Event{
			Type:    domain.EventRoomCreated,
			Payload: domain.RoomCreatedPayload{RoomCode: roomCode, QuizID: quizID},
		}); err != nil {
			h.teardown(ctrl, handle, conn)
			return
		}
	}

	h.pump(ctrl, handle, conn)
}

// ServePlayer handles passive player connections: no credential, but
// subject to rate limiting and room capacity. A playerId query resumes an
// existing roster identity after a disconnect.
func (h *WSHandler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("roomCode")
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	playerID := r.URL.Query().Get("playerId")
	if roomCode == "" || name == "" {
		http.Error(w, "missing roomCode or name", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		http.Error(w, "name too long", http.StatusBadRequest)
		return
	}
	if playerID == "" {
		playerID = name + "-" + randomSuffix()
	}
	addr := clientAddr(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	ctrl, handle, err := h.registry.JoinRoom(r.Context(), roomCode, app.AttachRequest{
		ParticipantID: playerID,
		DisplayName:   name,
		Role:          domain.RolePlayer,
		Addr:          addr,
	})
	if err != nil {
		closeWithError(conn, err)
		return
	}

	h.pump(ctrl, handle, conn)
}

// pump runs the writer goroutine and the read loop, then tears the
// connection down. Closing this socket cancels only this handle's pair,
// never the room.
func (h *WSHandler) pump(ctrl *app.Controller, handle *app.Handle, conn *websocket.Conn) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range handle.Outbound() {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		// Queue closed: the room dropped this handle. Say goodbye properly.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case domain.MessageStart:
			ctrl.Start(handle.ID())
		case domain.MessageNext:
			ctrl.Next(handle.ID())
		case domain.MessageAnswer:
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				ctrl.RejectMessage(handle.ID())
				continue
			}
			ctrl.SubmitAnswer(handle.ID(), payload.Option)
		case domain.MessagePong:
			ctrl.Pong(handle.ID())
		default:
			ctrl.RejectMessage(handle.ID())
		}
	}

	h.teardown(ctrl, handle, conn)
	<-writerDone
}

func (h *WSHandler) teardown(ctrl *app.Controller, handle *app.Handle, conn *websocket.Conn) {
	ctrl.Detach(handle.ID())
	// The controller closes the handle on detach, but may already be gone
	// if the room was torn down; Close is idempotent either way.
	handle.Close()
	h.registry.ReleaseHandle(handle)
	_ = conn.Close()
}

// closeWithError reports an admission failure on a just-upgraded socket
// with a policy-violation close code, mirroring the REST error taxonomy.
func closeWithError(conn *websocket.Conn, err error) {
	_ = conn.WriteJSON(domain.ErrorEvent(err))
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, domain.ErrorCode(err))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func randomSuffix() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
