package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sfkse/rewriteit/app/chat"
	"github.com/sfkse/rewriteit/app/config"
	"github.com/sfkse/rewriteit/app/layout"
	"github.com/sfkse/rewriteit/app/models"
	"github.com/sfkse/rewriteit/app/store"
	"github.com/sfkse/rewriteit/auth"

	"github.com/gin-gonic/gin"
)

const testSigningSecret = "slack-signing-secret"

type fakeDispatcher struct {
	mu    sync.Mutex
	tasks []models.RewriteTask
	err   error
}

func (f *fakeDispatcher) Submit(_ context.Context, task models.RewriteTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeDispatcher) Close() error { return nil }

func (f *fakeDispatcher) Tasks() []models.RewriteTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RewriteTask(nil), f.tasks...)
}

type fakeSlackAuth struct {
	identity *chat.Identity
	profile  *chat.Profile
	err      error
}

func (f *fakeSlackAuth) ExchangeCode(_ context.Context, code, _ string) (*chat.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func (f *fakeSlackAuth) UserInfo(_ context.Context, _, _ string) (*chat.Profile, error) {
	return f.profile, nil
}

type testServer struct {
	router     *gin.Engine
	store      *store.Store
	dispatcher *fakeDispatcher
	slack      *fakeSlackAuth
	sessions   *auth.SessionIssuer
	cfg        *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			APIBaseURL:    "https://api.rewordit.test",
			ClientBaseURL: "https://rewordit.test",
		},
		Stripe:  config.StripeConfig{WebhookSecret: "whsec_test"},
		Credits: config.CreditsConfig{Free: 25, Paid: 1000},
	}
	sessions, err := auth.NewSessionIssuer("session-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionIssuer error = %v", err)
	}

	ts := &testServer{
		store:      newTestStore(t),
		dispatcher: &fakeDispatcher{},
		slack:      &fakeSlackAuth{},
		sessions:   sessions,
		cfg:        cfg,
	}
	ts.router = NewRouter(NewServer(Deps{
		Config:     cfg,
		Store:      ts.store,
		Dispatcher: ts.dispatcher,
		Slack:      ts.slack,
		Verifier:   auth.NewVerifier(testSigningSecret),
		Sessions:   sessions,
	}))
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func signedSlackRequest(path string, form url.Values) *http.Request {
	body := form.Encode()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(auth.HeaderTimestamp, ts)
	req.Header.Set(auth.HeaderSignature, auth.Sign([]byte(testSigningSecret), ts, []byte(body)))
	return req
}

func slashForm(text string) url.Values {
	return url.Values{
		"command":      {"/rephrase"},
		"text":         {text},
		"user_id":      {"U1"},
		"user_name":    {"alice"},
		"response_url": {"https://hooks.slack.test/commands/1"},
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != `{"status":"healthy"}` {
		t.Fatalf("health = %d %s", resp.Code, resp.Body.String())
	}
}

func TestRephraseRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t)
	req := signedSlackRequest("/rephrase", slashForm("hello"))
	req.Header.Set(auth.HeaderSignature, "v0=bad")

	resp := ts.do(req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if len(ts.dispatcher.Tasks()) != 0 {
		t.Fatal("task submitted for unauthenticated request")
	}
}

func TestRephraseSubmitsTask(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(signedSlackRequest("/rephrase", slashForm("fix this sentence --tone formal")))

	if resp.Code != http.StatusOK || resp.Body.Len() != 0 {
		t.Fatalf("expected empty 200, got %d %q", resp.Code, resp.Body.String())
	}
	tasks := ts.dispatcher.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	want := models.RewriteTask{
		Kind:        models.TaskCommand,
		SlackUserID: "U1",
		UserName:    "alice",
		ResponseURL: "https://hooks.slack.test/commands/1",
		Text:        "fix this sentence",
		Tone:        "formal",
	}
	if tasks[0] != want {
		t.Fatalf("task = %+v, want %+v", tasks[0], want)
	}
}

func TestRephraseEmptyText(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(signedSlackRequest("/rephrase", slashForm("  --tone formal")))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var msg struct {
		ResponseType string `json:"response_type"`
		Text         string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &msg); err != nil {
		t.Fatalf("body is not JSON: %s", resp.Body.String())
	}
	if msg.ResponseType != layout.ResponseEphemeral || msg.Text != emptyTextMessage {
		t.Fatalf("unexpected card: %+v", msg)
	}
	if len(ts.dispatcher.Tasks()) != 0 {
		t.Fatal("task submitted for empty text")
	}
}

func TestRephraseQueueFull(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.err = ErrQueueFull

	resp := ts.do(signedSlackRequest("/rephrase", slashForm("hello")))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), busyMessage) {
		t.Fatalf("expected busy card, got %d %s", resp.Code, resp.Body.String())
	}
}

func interactionForm(t *testing.T, actionID, tone string) url.Values {
	t.Helper()
	return interactionFormWithValue(t, actionID, "x", tone)
}

func interactionFormWithValue(t *testing.T, actionID, value, tone string) url.Values {
	t.Helper()
	payload := map[string]any{
		"type":         "block_actions",
		"user":         map[string]any{"id": "U1", "name": "alice"},
		"response_url": "https://hooks.slack.test/actions/1",
		"actions": []map[string]any{
			{"type": "button", "action_id": actionID, "block_id": "rewrite_actions", "value": value},
		},
		"state": map[string]any{
			"values": map[string]any{
				layout.ToneBlockID: map[string]any{
					layout.ToneActionID: map[string]any{"type": "plain_text_input", "value": tone},
				},
			},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return url.Values{"payload": {string(raw)}}
}

func TestRephraseActionKinds(t *testing.T) {
	cases := []struct {
		action string
		kind   models.TaskKind
		tone   string
	}{
		{layout.ActionRewrite, models.TaskRewrite, "formal"},
		{layout.ActionSend, models.TaskPublish, ""},
		{layout.ActionDismiss, models.TaskDismiss, ""},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			ts := newTestServer(t)
			resp := ts.do(signedSlackRequest("/rephrase_action", interactionForm(t, tc.action, " formal ")))
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d %s", resp.Code, resp.Body.String())
			}
			tasks := ts.dispatcher.Tasks()
			if len(tasks) != 1 {
				t.Fatalf("tasks = %d, want 1", len(tasks))
			}
			got := tasks[0]
			if got.Kind != tc.kind || got.Tone != tc.tone || got.SlackUserID != "U1" || got.ResponseURL != "https://hooks.slack.test/actions/1" {
				t.Fatalf("task = %+v", got)
			}
		})
	}
}

func TestRephraseActionCarriesParaphraseID(t *testing.T) {
	const id = "9c1f6a0e-2b7d-4f55-8e0a-1d2c3b4a5f60"
	cases := []struct {
		action string
		value  string
		want   string
	}{
		{layout.ActionRewrite, id, id},
		{layout.ActionSend, id, id},
		{layout.ActionSend, "send", ""},
		{layout.ActionDismiss, id, ""},
	}
	for _, tc := range cases {
		t.Run(tc.action+"/"+tc.value, func(t *testing.T) {
			ts := newTestServer(t)
			resp := ts.do(signedSlackRequest("/rephrase_action", interactionFormWithValue(t, tc.action, tc.value, "")))
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.Code)
			}
			tasks := ts.dispatcher.Tasks()
			if len(tasks) != 1 || tasks[0].ParaphraseID != tc.want {
				t.Fatalf("tasks = %+v, want paraphrase id %q", tasks, tc.want)
			}
		})
	}
}

func TestRephraseActionUnknownAndInvalid(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(signedSlackRequest("/rephrase_action", interactionForm(t, "mystery_button", "")))
	if resp.Code != http.StatusOK || len(ts.dispatcher.Tasks()) != 0 {
		t.Fatalf("unknown action: %d, tasks=%d", resp.Code, len(ts.dispatcher.Tasks()))
	}

	resp = ts.do(signedSlackRequest("/rephrase_action", url.Values{}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing payload: expected 400, got %d", resp.Code)
	}

	resp = ts.do(signedSlackRequest("/rephrase_action", url.Values{"payload": {"{broken"}}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("invalid payload: expected 400, got %d", resp.Code)
	}
}

func TestSignIn(t *testing.T) {
	ts := newTestServer(t)
	ts.slack.identity = &chat.Identity{UserID: "U1", AccessToken: "xoxp-1"}
	ts.slack.profile = &chat.Profile{ID: "U1", Name: "alice", Raw: json.RawMessage(`{"id":"U1","name":"alice"}`)}

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/signin-oidc?code=abc", nil))
	if resp.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected redirect, got %d %s", resp.Code, resp.Body.String())
	}
	loc, err := url.Parse(resp.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad location: %v", err)
	}
	if loc.Scheme+"://"+loc.Host+loc.Path != "https://rewordit.test/success" {
		t.Fatalf("location = %s", loc)
	}
	claims, err := ts.sessions.Verify(loc.Query().Get("token"))
	if err != nil || claims.Subject != "U1" {
		t.Fatalf("token invalid: %v %+v", err, claims)
	}

	user, err := ts.store.GetUserBySlackID(context.Background(), "U1")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if user.Name() != "alice" || !strings.Contains(string(user.UserInfo), `"alice"`) {
		t.Fatalf("stored user mismatch: %+v", user)
	}
}

func TestSignInErrors(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/signin-oidc", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing code: expected 400, got %d", resp.Code)
	}

	ts.slack.err = errors.New("invalid_code")
	resp = ts.do(httptest.NewRequest(http.MethodGet, "/signin-oidc?code=bad", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("slack error: expected 400, got %d", resp.Code)
	}
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	u, _ := ts.store.GetOrCreateUser(ctx, "U1", "alice", nil)
	ts.store.RecordRewrite(ctx, u.ID, "hello", "hi", "casual")
	ts.store.SpendCredit(ctx, u.ID)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", resp.Code)
	}

	token, _ := ts.sessions.Issue("U1", "alice")
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = ts.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Plan             string        `json:"plan"`
		CreditsRemaining int           `json:"credits_remaining"`
		Rewrites         []rewriteView `json:"rewrites"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Plan != "free" || body.CreditsRemaining != 24 || len(body.Rewrites) != 1 || body.Rewrites[0].ParaphrasedText != "hi" {
		t.Fatalf("me mismatch: %+v", body)
	}
}
