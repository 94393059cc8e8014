package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxharvest/internal/harvest"
)

type fakeGmail struct {
	pages       map[string]map[string]any // pageToken -> response
	messages    map[string]any
	attachments map[string]string
	fail        map[string]int // path -> status code
	queries     []string
	maxResults  []string
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": http.StatusText(code),
			"errors":  []map[string]any{{"reason": reason, "message": http.StatusText(code)}},
		},
	})
}

func newTestClient(t *testing.T, f *fakeGmail) *Client {
	t.Helper()

	mux := http.NewServeMux()
	check := func(w http.ResponseWriter, r *http.Request) bool {
		if code, ok := f.fail[r.URL.Path]; ok {
			reason := "backendError"
			switch code {
			case http.StatusUnauthorized:
				reason = "authError"
			case http.StatusForbidden:
				reason = "insufficientPermissions"
			case http.StatusTooManyRequests:
				reason = "rateLimitExceeded"
			}
			writeAPIError(w, code, reason)
			return false
		}
		return true
	}

	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		if !check(w, r) {
			return
		}
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.maxResults = append(f.maxResults, r.URL.Query().Get("maxResults"))
		writeJSON(w, f.pages[r.URL.Query().Get("pageToken")])
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !check(w, r) {
			return
		}
		if r.URL.Query().Get("format") != "full" {
			http.Error(w, "format must be full", http.StatusBadRequest)
			return
		}
		msg, ok := f.messages[r.PathValue("id")]
		if !ok {
			writeAPIError(w, http.StatusNotFound, "notFound")
			return
		}
		writeJSON(w, msg)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}/attachments/{aid}", func(w http.ResponseWriter, r *http.Request) {
		if !check(w, r) {
			return
		}
		data := f.attachments[r.PathValue("id")+"/"+r.PathValue("aid")]
		writeJSON(w, map[string]any{"attachmentId": r.PathValue("aid"), "size": len(data), "data": data})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		if !check(w, r) {
			return
		}
		writeJSON(w, map[string]any{"emailAddress": "jane@example.com", "messagesTotal": 3})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), srv.Client(), WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return client
}

func TestClient_ListMessages(t *testing.T) {
	f := &fakeGmail{pages: map[string]map[string]any{
		"": {
			"messages":      []map[string]any{{"id": "m1", "threadId": "t1"}, {"id": "m2", "threadId": "t1"}},
			"nextPageToken": "p2",
		},
		"p2": {
			"messages": []map[string]any{{"id": "m3", "threadId": "t2"}},
		},
	}}
	client := newTestClient(t, f)
	ctx := context.Background()

	page, err := client.ListMessages(ctx, "has:attachment newer_than:30d", 2, "")
	require.NoError(t, err)
	assert.Equal(t, harvest.Page{IDs: []string{"m1", "m2"}, NextCursor: "p2"}, page)

	page, err = client.ListMessages(ctx, "has:attachment newer_than:30d", 2, "p2")
	require.NoError(t, err)
	assert.Equal(t, harvest.Page{IDs: []string{"m3"}}, page)

	assert.Equal(t, []string{"has:attachment newer_than:30d", "has:attachment newer_than:30d"}, f.queries)
	assert.Equal(t, []string{"2", "2"}, f.maxResults)
}

func TestClient_ListMessages_Empty(t *testing.T) {
	client := newTestClient(t, &fakeGmail{pages: map[string]map[string]any{"": {"resultSizeEstimate": 0}}})

	page, err := client.ListMessages(context.Background(), "x", 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.IDs)
	assert.Empty(t, page.NextCursor)
}

func TestClient_GetMessage(t *testing.T) {
	f := &fakeGmail{messages: map[string]any{
		"m1": map[string]any{
			"id": "m1",
			"payload": map[string]any{
				"partId":   "",
				"mimeType": "multipart/mixed",
				"body":     map[string]any{"size": 0},
				"parts": []map[string]any{
					{
						"partId":   "0",
						"mimeType": "multipart/alternative",
						"body":     map[string]any{"size": 0},
						"parts": []map[string]any{
							{"partId": "0.0", "mimeType": "text/plain", "body": map[string]any{"size": 5, "data": "aGVsbG8"}},
						},
					},
					{
						"partId":   "1",
						"mimeType": "application/pdf",
						"filename": "invoice.pdf",
						"body":     map[string]any{"attachmentId": "att-1", "size": 1234},
					},
				},
			},
		},
	}}
	client := newTestClient(t, f)

	root, err := client.GetMessage(context.Background(), "m1")
	require.NoError(t, err)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "multipart/mixed", root.ContentType)

	text := root.Children[0].Children[0]
	assert.Equal(t, "0.0", text.PartID)
	assert.Equal(t, "aGVsbG8", text.Data)
	assert.False(t, text.IsCandidate())

	pdf := root.Children[1]
	assert.Equal(t, &harvest.Part{
		PartID:       "1",
		Filename:     "invoice.pdf",
		ContentType:  "application/pdf",
		AttachmentID: "att-1",
		Size:         1234,
	}, pdf)

	var candidates []string
	for p := range harvest.Candidates(root) {
		candidates = append(candidates, p.Filename)
	}
	assert.Equal(t, []string{"invoice.pdf"}, candidates)
}

func TestClient_GetAttachment(t *testing.T) {
	client := newTestClient(t, &fakeGmail{attachments: map[string]string{"m1/att-1": "JVBERi0xLjQ="}})

	data, err := client.GetAttachment(context.Background(), "m1", "att-1")
	require.NoError(t, err)
	assert.Equal(t, "JVBERi0xLjQ=", data)

	_, err = client.GetAttachment(context.Background(), "m1", "")
	assert.Error(t, err)
}

func TestClient_Profile(t *testing.T) {
	client := newTestClient(t, &fakeGmail{})

	email, err := client.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantAuth bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden scope", http.StatusForbidden, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"backend error", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, &fakeGmail{fail: map[string]int{"/gmail/v1/users/me/messages": tt.status}})

			_, err := client.ListMessages(context.Background(), "x", 10, "")
			require.Error(t, err)

			var authErr *harvest.AuthError
			var svcErr *harvest.TransientServiceError
			if tt.wantAuth {
				assert.ErrorAs(t, err, &authErr)
				assert.Equal(t, harvest.OutcomeFatal, harvest.Classify(err))
			} else {
				require.ErrorAs(t, err, &svcErr)
				assert.Equal(t, "list", svcErr.Op)
				assert.Equal(t, harvest.OutcomeTransient, harvest.Classify(err))
			}
		})
	}
}

func TestClient_NotFoundIsServiceError(t *testing.T) {
	client := newTestClient(t, &fakeGmail{})

	_, err := client.GetMessage(context.Background(), "missing")

	var svcErr *harvest.TransientServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "get_message", svcErr.Op)
}

func TestClassifyError(t *testing.T) {
	assert.NoError(t, classifyError("list", nil))
	assert.ErrorIs(t, classifyError("list", context.Canceled), context.Canceled)

	var authErr *harvest.AuthError
	assert.ErrorAs(t, classifyError("list", errors.Join(errors.New("refresh"), &oauth2RetrieveError)), &authErr)
}

func TestConvertPart(t *testing.T) {
	assert.Nil(t, convertPart(nil))

	root := convertPart(&gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			nil,
			{PartId: "0", Filename: "a.png", MimeType: "image/png", Body: &gmail.MessagePartBody{AttachmentId: "x", Size: 3}},
			{PartId: "1", MimeType: "text/plain"},
		},
	})

	require.Len(t, root.Children, 2)
	assert.Equal(t, "0", root.Children[0].PartID, "children keep declaration order")
	assert.True(t, root.Children[0].IsCandidate())
	assert.Equal(t, "1", root.Children[1].PartID)
}

var oauth2RetrieveError = oauth2.RetrieveError{ErrorCode: "invalid_grant"}
