package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mathquest-service/internal/app"
	"mathquest-service/internal/domain"
	"mathquest-service/internal/infra/memory"
)

const demoUserID = int64(1)

func newTestServer(t *testing.T) (*httptest.Server, *app.Service) {
	t.Helper()
	ledger := memory.NewLedger(domain.User{ID: demoUserID, Username: "demo_user"})
	content := memory.NewContentRepository(memory.NewStaticContentLoader(sampleLessons()), time.Minute)
	hub := app.NewProgressHub()
	service := app.NewService(content, ledger, app.WithHub(hub))

	mux := http.NewServeMux()
	NewHandler(service, hub, demoUserID).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func sampleLessons() map[int64]domain.Lesson {
	return map[int64]domain.Lesson{
		1: {
			ID:    1,
			Title: "Basic Arithmetic",
			Problems: []domain.Problem{
				{
					ID:       101,
					Question: "What is 2 + 3?",
					Options: []domain.ProblemOption{
						{ID: 1, Text: "4"},
						{ID: 2, Text: "5"},
					},
					Key: domain.ChoiceKey{OptionID: 2},
				},
				{
					ID:       102,
					Question: "What is 10 / 2?",
					Key:      domain.NumericKey{Value: 5.0},
				},
			},
		},
	}
}

func postSubmit(t *testing.T, server *httptest.Server, lessonPath, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+lessonPath+"/submit", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestListLessonsHidesAnswerKeys(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/lessons")
	if err != nil {
		t.Fatalf("get lessons: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := buf.String()
	for _, leak := range []string{"correctOptionId", "correct_option", "correctValue", "correct_value"} {
		if strings.Contains(body, leak) {
			t.Fatalf("answer key leaked in listing: %q in %s", leak, body)
		}
	}

	var lessons []lessonView
	if err := json.Unmarshal(buf.Bytes(), &lessons); err != nil {
		t.Fatalf("decode lessons: %v", err)
	}
	if len(lessons) != 1 || len(lessons[0].Problems) != 2 {
		t.Fatalf("unexpected listing %+v", lessons)
	}
}

func TestGetLessonNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/api/lessons/42", "/api/lessons/not-a-number"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestSubmitEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	body := `{
		"attempt_id": "11111111-1111-1111-1111-111111111111",
		"answers": [
			{"problem_id": 101, "option_id": 2},
			{"problem_id": 102, "value": "5"}
		]
	}`

	resp := postSubmit(t, server, "/api/lessons/1", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var outcome app.SubmitOutcome
	decodeBody(t, resp, &outcome)
	if outcome.CorrectCount != 2 || outcome.EarnedXP != 20 || outcome.Duplicate {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	// Same attempt id replays as a duplicate.
	resp = postSubmit(t, server, "/api/lessons/1", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", resp.StatusCode)
	}
	var replay app.SubmitOutcome
	decodeBody(t, resp, &replay)
	if !replay.Duplicate || replay.NewTotalXP != outcome.NewTotalXP {
		t.Fatalf("unexpected replay %+v", replay)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	server, _ := newTestServer(t)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{
			name: "malformed json",
			path: "/api/lessons/1",
			body: `{"attempt_id": `,
			want: http.StatusBadRequest,
		},
		{
			name: "attempt id not a uuid",
			path: "/api/lessons/1",
			body: `{"attempt_id": "attempt-1", "answers": [{"problem_id": 101, "option_id": 2}]}`,
			want: http.StatusBadRequest,
		},
		{
			name: "empty answers",
			path: "/api/lessons/1",
			body: `{"attempt_id": "22222222-2222-2222-2222-222222222222", "answers": []}`,
			want: http.StatusBadRequest,
		},
		{
			name: "answer without option or value",
			path: "/api/lessons/1",
			body: `{"attempt_id": "33333333-3333-3333-3333-333333333333", "answers": [{"problem_id": 101}]}`,
			want: http.StatusBadRequest,
		},
		{
			name: "problem from another lesson",
			path: "/api/lessons/1",
			body: `{"attempt_id": "44444444-4444-4444-4444-444444444444", "answers": [{"problem_id": 999, "option_id": 1}]}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown lesson",
			path: "/api/lessons/42",
			body: `{"attempt_id": "55555555-5555-5555-5555-555555555555", "answers": [{"problem_id": 101, "option_id": 2}]}`,
			want: http.StatusNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postSubmit(t, server, tc.path, tc.body)
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
			var errResp errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if errResp.Error == "" {
				t.Fatalf("expected error code in body")
			}
		})
	}
}

func TestSubmitMalformedValueIsIncorrectNotError(t *testing.T) {
	server, _ := newTestServer(t)

	body := `{
		"attempt_id": "66666666-6666-6666-6666-666666666666",
		"answers": [{"problem_id": 102, "value": "abc"}]
	}`
	resp := postSubmit(t, server, "/api/lessons/1", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var outcome app.SubmitOutcome
	decodeBody(t, resp, &outcome)
	if outcome.CorrectCount != 0 || outcome.EarnedXP != 0 {
		t.Fatalf("malformed value must grade incorrect, got %+v", outcome)
	}
}

func TestProfileReflectsSubmissions(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/profile")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	var before profileView
	decodeBody(t, resp, &before)
	if before.TotalXP != 0 || before.LastActivity != nil {
		t.Fatalf("expected untouched profile, got %+v", before)
	}

	postSubmit(t, server, "/api/lessons/1", `{
		"attempt_id": "77777777-7777-7777-7777-777777777777",
		"answers": [{"problem_id": 101, "option_id": 2}]
	}`).Body.Close()

	resp, err = http.Get(server.URL + "/api/profile")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	var after profileView
	decodeBody(t, resp, &after)
	if after.TotalXP != 10 || after.CurrentStreak != 1 || after.LastActivity == nil {
		t.Fatalf("expected updated profile, got %+v", after)
	}
}
