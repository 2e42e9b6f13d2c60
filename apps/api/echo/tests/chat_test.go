package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/chat"
	"github.com/chantio/chantio/core/user"
)

func createConversation(t *testing.T, creatorID string, isGroup bool, name string, memberIDs ...string) chat.Conversation {
	t.Helper()

	now := time.Now().UTC()
	conv, err := chatRepo.CreateConversation(context.Background(), chat.Conversation{
		Name:      name,
		IsGroup:   isGroup,
		MemberIDs: append([]string{creatorID}, memberIDs...),
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}
	return conv
}

func createMessage(t *testing.T, convID, senderID, body string, createdAt time.Time) chat.Message {
	t.Helper()

	msg, err := chatRepo.CreateMessage(context.Background(), chat.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Body:           body,
		ReadBy:         []string{senderID},
		CreatedAt:      createdAt.UTC(),
	})
	if err != nil {
		t.Fatalf("CreateMessage() failed: %v", err)
	}
	if err := chatRepo.SetLastMessageAt(context.Background(), convID, msg.CreatedAt); err != nil {
		t.Fatalf("SetLastMessageAt() failed: %v", err)
	}
	return msg
}

func Test_chatApi_create(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	third := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)
	workerToken := getToken(t, worker)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "members required", token: workerToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, chat.NewConversation{}),
			wantData: marchallObj(t, map[string]string{"member_ids": "this field is required"}),
		},
		{
			name: "self only refused", token: workerToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, chat.NewConversation{MemberIDs: []string{worker.ID}}),
			wantData: marchallObj(t, map[string]string{"member_ids": "a conversation needs at least one other member"}),
		},
		{
			name: "direct", token: workerToken, wantCode: http.StatusCreated,
			body: marchallObj(t, chat.NewConversation{MemberIDs: []string{other.ID}}), extra: "direct",
		},
		{
			name: "direct is deduplicated", token: workerToken, wantCode: http.StatusCreated,
			body: marchallObj(t, chat.NewConversation{MemberIDs: []string{other.ID}}), extra: "dedupe",
		},
		{
			name: "three members make a group", token: workerToken, wantCode: http.StatusCreated,
			body:  marchallObj(t, chat.NewConversation{Name: "Site A crew", MemberIDs: []string{other.ID, third.ID}}),
			extra: "group",
		},
	}

	var directID string
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/conversations"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if kind, ok := tt.extra.(string); ok {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var conv chat.Conversation
				if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				switch kind {
				case "direct":
					if conv.IsGroup || len(conv.MemberIDs) != 2 || !conv.HasMember(worker.ID) || !conv.HasMember(other.ID) {
						t.Errorf("failed! unexpected conversation %+v", conv)
					}
					directID = conv.ID
				case "dedupe":
					if conv.ID != directID {
						t.Errorf("failed! got a second direct conversation %s; want %s", conv.ID, directID)
					}
				case "group":
					if !conv.IsGroup || len(conv.MemberIDs) != 3 || conv.Name != "Site A crew" {
						t.Errorf("failed! unexpected conversation %+v", conv)
					}
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_chatApi_list(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	third := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)

	now := time.Now().UTC()
	old := createConversation(t, worker.ID, false, "", other.ID)
	busy := createConversation(t, worker.ID, true, "Site A crew", other.ID, third.ID)
	notMine := createConversation(t, other.ID, false, "", third.ID)
	createMessage(t, old.ID, other.ID, "hey", now.Add(-2*time.Hour))
	createMessage(t, busy.ID, third.ID, "crane is down again", now.Add(-10*time.Minute))

	t.Run("most recent activity first, members only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/conversations", getToken(t, worker))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var convs []chat.Conversation
		if err := json.Unmarshal(rec.Body.Bytes(), &convs); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(convs) != 2 {
			t.Fatalf("failed! len(convs) = %d; want 2", len(convs))
		}
		if convs[0].ID != busy.ID || convs[1].ID != old.ID {
			t.Errorf("failed! order = [%s %s]; want [%s %s]", convs[0].ID, convs[1].ID, busy.ID, old.ID)
		}
		for _, conv := range convs {
			if conv.ID == notMine.ID {
				t.Errorf("failed! someone else's conversation leaked: %+v", conv)
			}
		}
	})
}

func Test_chatApi_retrieve(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	stranger := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)

	conv := createConversation(t, worker.ID, false, "", other.ID)

	notFound := marchallObj(t, httpErr{Error: "not found"})
	tests := []httpTest{
		{name: "Unknown id", path: "/v1/conversations/lol", token: getToken(t, worker), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "Non-members get a miss, not a forbidden", path: "/v1/conversations/" + conv.ID, token: getToken(t, stranger),
			wantCode: http.StatusNotFound, wantData: notFound,
		},
		{name: "Member", path: "/v1/conversations/" + conv.ID, token: getToken(t, worker), wantCode: http.StatusOK, wantData: marchallObj(t, conv)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_chatApi_send(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	stranger := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)
	workerToken := getToken(t, worker)

	conv := createConversation(t, worker.ID, false, "", other.ID)

	t.Run("non-members get a miss", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", getToken(t, stranger),
			marchallObj(t, chat.NewMessage{Body: "hi"}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})

	t.Run("non-members leave no attachments behind", func(t *testing.T) {
		notifier.Reset()

		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", getToken(t, stranger),
			map[string]string{"body": "sneaky"},
			formFile{field: "attachments", name: "sneaky.png", contentType: "image/png", content: pngBytes(t)},
		)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)

		// the upload pipeline never ran
		for _, evt := range notifier.Events() {
			if evt.Type == core.EventUploadProgress {
				t.Fatalf("failed! unexpected upload event %+v", evt)
			}
		}
	})

	t.Run("a message needs text or attachments", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", workerToken,
			marchallObj(t, chat.NewMessage{Body: "   "}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"body": "a message needs text or attachments"}),
		}, rec)
	})

	t.Run("text message", func(t *testing.T) {
		notifier.Reset()

		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", workerToken,
			marchallObj(t, chat.NewMessage{Body: "scaffolding is up"}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var msg chat.Message
		if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if msg.SenderID != worker.ID || msg.Body != "scaffolding is up" {
			t.Errorf("failed! unexpected message %+v", msg)
		}
		// the sender has read their own message
		if len(msg.ReadBy) != 1 || msg.ReadBy[0] != worker.ID {
			t.Errorf("failed! ReadBy = %v; want [%s]", msg.ReadBy, worker.ID)
		}

		// every member gets a socket event
		events := notifier.Events()
		if len(events) != 1 {
			t.Fatalf("failed! len(events) = %d; want 1", len(events))
		}
		if events[0].Type != core.EventMessageCreated || len(events[0].Recipients) != 2 {
			t.Errorf("failed! unexpected event %+v", events[0])
		}

		// conversation activity moved
		refreshed, err := chatRepo.GetConversationByID(context.Background(), conv.ID)
		if err != nil {
			t.Fatalf("GetConversationByID() failed: %v", err)
		}
		if refreshed.LastMessageAt.IsZero() {
			t.Error("failed! LastMessageAt not set")
		}
	})

	t.Run("message with attachment", func(t *testing.T) {
		png := pngBytes(t)
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", workerToken,
			map[string]string{"body": "see the crack here"},
			formFile{field: "attachments", name: "crack.png", contentType: "image/png", content: png},
		)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var msg chat.Message
		if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(msg.Attachments) != 1 {
			t.Fatalf("failed! len(Attachments) = %d; want 1", len(msg.Attachments))
		}
		att := msg.Attachments[0]
		if att.FileID == "" || att.Name != "crack.png" || !att.HasThumbnail {
			t.Errorf("failed! unexpected attachment %+v", att)
		}
	})

	t.Run("attachment only, no text", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", workerToken, nil,
			formFile{field: "attachments", name: "crack.png", contentType: "image/png", content: pngBytes(t)},
		)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func Test_chatApi_messages(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	stranger := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)

	conv := createConversation(t, worker.ID, false, "", other.ID)

	now := time.Now().UTC()
	m1 := createMessage(t, conv.ID, worker.ID, "first", now.Add(-3*time.Hour))
	m2 := createMessage(t, conv.ID, other.ID, "second", now.Add(-2*time.Hour))
	m3 := createMessage(t, conv.ID, worker.ID, "third", now.Add(-1*time.Hour))

	tests := []httpTest{
		{
			name: "Non-members get a miss", path: "/v1/conversations/" + conv.ID + "/messages", token: getToken(t, stranger),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "newest first", path: "/v1/conversations/" + conv.ID + "/messages", token: getToken(t, worker),
			wantCode: http.StatusOK, wantData: marchallList(t, m3, m2, m1),
		},
		{
			name: "limit", path: "/v1/conversations/" + conv.ID + "/messages?limit=2", token: getToken(t, worker),
			wantCode: http.StatusOK, wantData: marchallList(t, m3, m2),
		},
		{
			name: "page backwards with before", token: getToken(t, worker),
			path:     "/v1/conversations/" + conv.ID + "/messages?before=" + m3.CreatedAt.Format(time.RFC3339Nano) + "&limit=1",
			wantCode: http.StatusOK, wantData: marchallList(t, m2),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_chatApi_readTracking(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	workerToken := getToken(t, worker)

	conv := createConversation(t, worker.ID, false, "", other.ID)

	now := time.Now().UTC()
	createMessage(t, conv.ID, other.ID, "one", now.Add(-3*time.Hour))
	createMessage(t, conv.ID, other.ID, "two", now.Add(-2*time.Hour))
	createMessage(t, conv.ID, worker.ID, "three", now.Add(-1*time.Hour))

	get := func(t *testing.T, path string) map[string]int64 {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, path, workerToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var data map[string]int64
		if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		return data
	}

	t.Run("unread count", func(t *testing.T) {
		if got := get(t, "/v1/conversations/"+conv.ID+"/unread"); got["unread"] != 2 {
			t.Errorf("failed! unread = %d; want 2", got["unread"])
		}
	})

	t.Run("mark read", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/read", workerToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var data map[string]int64
		if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if data["marked"] != 2 {
			t.Errorf("failed! marked = %d; want 2", data["marked"])
		}
		if got := get(t, "/v1/conversations/"+conv.ID+"/unread"); got["unread"] != 0 {
			t.Errorf("failed! unread = %d; want 0", got["unread"])
		}
	})

	t.Run("marking again is a no-op", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/read", workerToken)
		app.ServeHTTP(rec, req)
		var data map[string]int64
		if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if data["marked"] != 0 {
			t.Errorf("failed! marked = %d; want 0", data["marked"])
		}
	})
}
