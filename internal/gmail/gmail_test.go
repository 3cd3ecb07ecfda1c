package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/daviddao/mailtriage/internal/db"
	"github.com/daviddao/mailtriage/internal/normalize"
	"github.com/daviddao/mailtriage/internal/types"
)

// fakeGmail is a minimal in-memory Gmail REST backend.
type fakeGmail struct {
	mu        sync.Mutex
	labels    []*gm.Label
	created   []string
	modified  map[string]*gm.ModifyMessageRequest
	listQuery string
	listLabel []string
	messages  map[string]*gm.Message
	listCalls int
}

func newFakeGmail() *fakeGmail {
	return &fakeGmail{
		labels:   []*gm.Label{{Id: "INBOX", Name: "INBOX"}, {Id: "Label_7", Name: "spam"}},
		modified: make(map[string]*gm.ModifyMessageRequest),
		messages: make(map[string]*gm.Message),
	}
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		write(w, &gm.Profile{EmailAddress: "me@example.com"})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listCalls++
		write(w, &gm.ListLabelsResponse{Labels: f.labels})
	})
	mux.HandleFunc("POST /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		var l gm.Label
		json.NewDecoder(r.Body).Decode(&l)
		f.mu.Lock()
		defer f.mu.Unlock()
		l.Id = "Label_new_" + l.Name
		f.labels = append(f.labels, &l)
		f.created = append(f.created, l.Name)
		write(w, &l)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listQuery = r.URL.Query().Get("q")
		f.listLabel = r.URL.Query()["labelIds"]
		write(w, &gm.ListMessagesResponse{Messages: []*gm.Message{{Id: "a1"}, {Id: "b2"}}})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		msg, ok := f.messages[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"Not Found"}}`, http.StatusNotFound)
			return
		}
		write(w, msg)
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
		var req gm.ModifyMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, id := range req.AddLabelIds {
			if !f.hasLabel(id) {
				http.Error(w, `{"error":{"code":400,"message":"Invalid label"}}`, http.StatusBadRequest)
				return
			}
		}
		f.modified[r.PathValue("id")] = &req
		write(w, &gm.Message{Id: r.PathValue("id")})
	})
	return mux
}

func (f *fakeGmail) hasLabel(id string) bool {
	for _, l := range f.labels {
		if l.Id == id {
			return true
		}
	}
	return false
}

func newTestMailbox(t *testing.T, f *fakeGmail, cache LabelCache) *Mailbox {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	svc, err := gm.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	m := NewMailbox(svc, Options{Cache: cache}, nil)
	_, err = m.Verify(context.Background())
	require.NoError(t, err)
	return m
}

func TestListUnreadSince(t *testing.T) {
	f := newFakeGmail()
	m := newTestMailbox(t, f, nil)
	assert.Equal(t, "me@example.com", m.Account())

	ids, err := m.ListUnreadSince(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b2"}, ids)
	assert.Equal(t, "label:UNREAD newer_than:1h", f.listQuery)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, f.listLabel)
}

func TestGetMessageConvertsPayload(t *testing.T) {
	f := newFakeGmail()
	f.messages["a1"] = &gm.Message{
		Id: "a1",
		Payload: &gm.MessagePart{
			Headers: []*gm.MessagePartHeader{{Name: "Subject", Value: "Hi"}},
			Parts: []*gm.MessagePart{
				{MimeType: "text/html", Body: &gm.MessagePartBody{Data: "PGI-SGk8L2I-"}},
				{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: "SGVsbG8="}},
			},
		},
	}
	m := newTestMailbox(t, f, nil)

	msg, err := m.GetMessage(context.Background(), " a1== ")
	require.NoError(t, err)
	assert.Equal(t, "Subject: Hi\n\nHello", normalize.Normalize(msg))

	_, err = m.GetMessage(context.Background(), "missing")
	assert.Error(t, err)
}

func TestApplyLabelCreatesMissingLabelOnce(t *testing.T) {
	f := newFakeGmail()
	m := newTestMailbox(t, f, nil)
	ctx := context.Background()

	require.NoError(t, m.ApplyLabel(ctx, "a1", "Personal"))
	require.NoError(t, m.ApplyLabel(ctx, "b2", "personal"))

	assert.Equal(t, []string{"Personal"}, f.created)
	assert.Equal(t, 1, f.listCalls)
	req := f.modified["a1"]
	require.NotNil(t, req)
	assert.Equal(t, []string{"Label_new_Personal"}, req.AddLabelIds)
	assert.Equal(t, []string{"UNREAD"}, req.RemoveLabelIds)
	assert.Equal(t, []string{"Label_new_Personal"}, f.modified["b2"].AddLabelIds)
}

func TestApplyLabelMatchesExistingCaseInsensitively(t *testing.T) {
	f := newFakeGmail()
	m := newTestMailbox(t, f, nil)

	require.NoError(t, m.ApplyLabel(context.Background(), "a1", "Spam"))
	assert.Empty(t, f.created)
	assert.Equal(t, []string{"Label_7"}, f.modified["a1"].AddLabelIds)
}

func TestApplyLabelUsesAndRepairsCache(t *testing.T) {
	cache, err := db.Open(":memory:")
	require.NoError(t, err)
	defer cache.Close()
	require.NoError(t, cache.PutLabel(Backend, "me@example.com", "Spam", "Label_gone"))

	f := newFakeGmail()
	m := newTestMailbox(t, f, cache)

	require.NoError(t, m.ApplyLabel(context.Background(), "a1", "Spam"))
	assert.Equal(t, []string{"Label_7"}, f.modified["a1"].AddLabelIds)

	id, ok, err := cache.LabelID(Backend, "me@example.com", "Spam")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Label_7", id)
}

func TestCreateLabelIfAbsent(t *testing.T) {
	f := newFakeGmail()
	m := newTestMailbox(t, f, nil)

	id, err := m.CreateLabelIfAbsent(context.Background(), string(types.CategoryBilling))
	require.NoError(t, err)
	assert.Equal(t, "Label_new_Billing / Invoice", id)

	id, err = m.CreateLabelIfAbsent(context.Background(), "SPAM")
	require.NoError(t, err)
	assert.Equal(t, "Label_7", id)
}

func TestFromAPISinglePart(t *testing.T) {
	raw := FromAPI(&gm.Message{
		Id: "x",
		Payload: &gm.MessagePart{
			MimeType: "text/plain",
			Body:     &gm.MessagePartBody{Data: "SGVsbG8"},
		},
	})
	assert.Equal(t, types.SinglePart{Data: "SGVsbG8"}, raw.Body)
	assert.Equal(t, "Subject: (No Subject)\n\nHello", normalize.Normalize(raw))

	empty := FromAPI(&gm.Message{Id: "y"})
	assert.Equal(t, "Subject: (No Subject)\n\n", normalize.Normalize(empty))
}

func TestFromAPINestedParts(t *testing.T) {
	raw := FromAPI(&gm.Message{Payload: &gm.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gm.MessagePart{
			{MimeType: "multipart/alternative", Parts: []*gm.MessagePart{
				{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: "aW5uZXI"}},
			}},
		},
	}})
	mp, ok := raw.Body.(types.MultiPart)
	require.True(t, ok)
	require.Len(t, mp.Parts, 1)
	require.Len(t, mp.Parts[0].Parts, 1)
	assert.Equal(t, "inner", normalize.Body(raw.Body))
}

func TestSanitizeMessageID(t *testing.T) {
	assert.Equal(t, "18c1234567890abc", SanitizeMessageID("  18c1234567890abc== "))
	assert.Equal(t, "ab-c_d", SanitizeMessageID("a/b-c_d!"))
}

func TestNewerThan(t *testing.T) {
	assert.Equal(t, "1h", NewerThan(0))
	assert.Equal(t, "1h", NewerThan(30*time.Minute))
	assert.Equal(t, "2h", NewerThan(90*time.Minute))
	assert.Equal(t, "3d", NewerThan(72*time.Hour))
	assert.Equal(t, "25h", NewerThan(25*time.Hour))
}
