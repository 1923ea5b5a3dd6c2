package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sfkse/rewriteit/app/chat"
	"github.com/sfkse/rewriteit/app/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	url := "sqlite://" + filepath.Join(t.TempDir(), "app.db")
	s, err := store.Open(context.Background(), url, store.WithFreeCredits(25))
	if err != nil {
		t.Fatalf("store.Open error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate error = %v", err)
	}
	return s
}

type completionCall struct {
	text string
	tone string
}

type fakeCompleter struct {
	mu    sync.Mutex
	out   string
	err   error
	panic bool
	calls []completionCall
}

func (f *fakeCompleter) Complete(_ context.Context, text, tone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completionCall{text: text, tone: tone})
	if f.panic {
		panic("provider exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func (f *fakeCompleter) Calls() []completionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completionCall(nil), f.calls...)
}

var errProvider = errors.New("provider unavailable")

type sinkMessage struct {
	ResponseType    string `json:"response_type"`
	Text            string `json:"text"`
	ReplaceOriginal bool   `json:"replace_original"`
	DeleteOriginal  bool   `json:"delete_original"`
	Raw             string `json:"-"`
}

// callbackSink stands in for Slack's response_url.
type callbackSink struct {
	mu       sync.Mutex
	messages []sinkMessage
	server   *httptest.Server
}

func newCallbackSink(t *testing.T) *callbackSink {
	t.Helper()
	sink := &callbackSink{}
	sink.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg sinkMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Errorf("callback body is not JSON: %s", body)
		}
		msg.Raw = string(body)
		sink.mu.Lock()
		sink.messages = append(sink.messages, msg)
		sink.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.server.Close)
	return sink
}

func (s *callbackSink) URL() string { return s.server.URL + "/commands/T1/1/abc" }

func (s *callbackSink) Messages() []sinkMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkMessage(nil), s.messages...)
}

func newTestProcessor(t *testing.T, st *store.Store, completer *fakeCompleter) *Processor {
	t.Helper()
	return NewProcessor(st, completer, chat.NewClient("", ""))
}
