package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mathquest-service/internal/app"
	"mathquest-service/internal/domain"
)

func TestWebSocketProgressStream(t *testing.T) {
	server, service := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Snapshot arrives first with the user's current totals.
	msgType, payload := readNext(conn, t, "snapshot")
	if msgType != "snapshot" {
		t.Fatalf("expected snapshot, got %s", msgType)
	}
	if payload.TotalXP != 0 {
		t.Fatalf("expected zero xp snapshot, got %+v", payload)
	}

	opt := int64(2)
	if _, err := service.Submit(context.Background(), app.SubmitRequest{
		UserID:    demoUserID,
		LessonID:  1,
		AttemptID: "88888888-8888-8888-8888-888888888888",
		Answers:   []domain.AnswerItem{{ProblemID: 101, OptionID: &opt}},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	msgType, payload = readNext(conn, t, "progress")
	if msgType != "progress" {
		t.Fatalf("expected progress, got %s", msgType)
	}
	if payload.TotalXP != 10 || payload.EarnedXP != 10 || payload.LessonID != 1 {
		t.Fatalf("unexpected progress payload %+v", payload)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, app.ProgressUpdate) {
	t.Helper()
	var msg struct {
		Type    string             `json:"type"`
		Payload app.ProgressUpdate `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func TestWebSocketRejectsBadUserID(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws/progress?userId=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
