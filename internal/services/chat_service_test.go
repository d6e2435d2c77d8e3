package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/markdave123-py/docchat/internal/core"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/models"
)

func newMessageStore(t *testing.T) *db.SQLiteClient {
	t.Helper()
	client, err := db.NewSQLiteClient(context.Background(), filepath.Join(t.TempDir(), "chat.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestChatSend(t *testing.T) {
	ctx := context.Background()
	store := newMessageStore(t)
	llm := &fakeLLM{}
	retriever := staticRetriever{passages: []models.Passage{
		{Text: "Paris is the capital of France."},
		{Text: "France is in Europe."},
	}}
	svc := NewChatService(store, retriever, llm, "be brief", 2, discardLogger())

	reply, err := svc.Send(ctx, "t1", "capital of France?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Status != "success" || reply.Reply != "The answer." || reply.Usage.TotalTokens != 12 {
		t.Errorf("reply = %+v", reply)
	}

	wantRoles := []string{models.RoleSystem, models.RoleSystem, models.RoleSystem, models.RoleUser}
	if len(llm.prompt) != len(wantRoles) {
		t.Fatalf("prompt = %+v", llm.prompt)
	}
	for i, role := range wantRoles {
		if llm.prompt[i].Role != role {
			t.Errorf("prompt[%d].Role = %q, want %q", i, llm.prompt[i].Role, role)
		}
	}
	if llm.prompt[0].Content != "be brief" || llm.prompt[1].Content != "Paris is the capital of France." {
		t.Errorf("prompt = %+v", llm.prompt)
	}

	history, err := svc.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Content != "The answer." {
		t.Errorf("history = %+v", history)
	}
}

func TestChatSendRejectsInput(t *testing.T) {
	svc := NewChatService(newMessageStore(t), staticRetriever{}, &fakeLLM{}, "", 0, nil)
	tests := []struct {
		name, thread, msg string
		want              error
	}{
		{"blank message", "t1", "  \n", ErrEmptyMessage},
		{"missing thread", " ", "hi", ErrMissingThread},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Send(context.Background(), tt.thread, tt.msg); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := svc.History(context.Background(), ""); !errors.Is(err, ErrMissingThread) {
		t.Errorf("History err = %v", err)
	}
}

func TestChatSendFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("index missing", func(t *testing.T) {
		store := newMessageStore(t)
		svc := NewChatService(store, staticRetriever{err: core.ErrIndexNotFound}, &fakeLLM{}, "", 5, discardLogger())
		if _, err := svc.Send(ctx, "t1", "hello"); !errors.Is(err, ErrIndexUnavailable) {
			t.Fatalf("err = %v", err)
		}
		// The question is kept even though nothing answered it.
		h, _ := svc.History(ctx, "t1")
		if len(h) != 1 || h[0].Role != models.RoleUser {
			t.Errorf("history = %+v", h)
		}
	})

	t.Run("llm error", func(t *testing.T) {
		boom := errors.New("upstream 503")
		svc := NewChatService(newMessageStore(t), staticRetriever{}, &fakeLLM{err: boom}, "", 5, discardLogger())
		if _, err := svc.Send(ctx, "t1", "hello"); !errors.Is(err, boom) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestHistoryUnknownThread(t *testing.T) {
	svc := NewChatService(newMessageStore(t), staticRetriever{}, &fakeLLM{}, "", 5, discardLogger())
	h, err := svc.History(context.Background(), "nobody")
	if err != nil || h == nil || len(h) != 0 {
		t.Errorf("History = %v, %v", h, err)
	}
}
