package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/livedesk/backend/internal/http/middleware"
	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/realtime"
	"github.com/livedesk/backend/internal/repos"
	"github.com/livedesk/backend/internal/services"
	"github.com/livedesk/backend/internal/types"
)

const testJWTSecret = "test-secret"

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	theDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := theDB.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := theDB.AutoMigrate(&types.Conversation{}, &types.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return theDB
}

type apiFixture struct {
	engine        *gin.Engine
	identity      services.IdentityService
	conversations services.ConversationService
	router        *services.SessionRouter
	hub           *realtime.Hub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := mustTestLogger(t)
	theDB := newTestDB(t)
	repo := repos.NewConversationRepo(theDB, log)
	conversations := services.NewConversationService(theDB, log, repo, 5*time.Second)
	identity := services.NewIdentityService(log, testJWTSecret)
	hub := realtime.NewHub(log)
	notifier := services.NewSupportNotifier(hub)
	sessionRouter := services.NewSessionRouter(log, hub, conversations, notifier, "")

	handler := NewSupportHandler(log, conversations, notifier, hub, sessionRouter)
	auth := middleware.NewAuthMiddleware(log, identity)

	engine := gin.New()
	staff := engine.Group("/api/support")
	staff.Use(auth.RequireStaff())
	staff.GET("/chats", handler.ListChats)
	staff.GET("/chats/:id", handler.GetChat)
	staff.PUT("/chats/:id/end", handler.EndChat)
	staff.DELETE("/chats/:id", handler.DeleteChat)
	staff.GET("/tickets", handler.ListTickets)
	staff.PUT("/tickets/:id/assign", handler.AssignTicket)
	staff.GET("/presence", handler.Presence)

	return &apiFixture{
		engine:        engine,
		identity:      identity,
		conversations: conversations,
		router:        sessionRouter,
		hub:           hub,
	}
}

func (fx *apiFixture) staffToken(t *testing.T, subject uuid.UUID) string {
	t.Helper()
	token, err := fx.identity.Issue(subject, types.RoleStaff, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func (fx *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.engine.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return out
}

func (fx *apiFixture) startConversation(t *testing.T, name string) *types.Conversation {
	t.Helper()
	conv, err := fx.conversations.Start(context.Background(), services.StartInput{
		VisitorConnRef: uuid.NewString(),
		DisplayName:    name,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return conv
}

func TestStaffSurfaceRejectsNonStaff(t *testing.T) {
	fx := newAPIFixture(t)

	visitorToken, err := fx.identity.Issue(uuid.New(), types.RoleVisitor, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{name: "no_token", token: ""},
		{name: "garbage_token", token: "not-a-jwt"},
		{name: "visitor_token", token: visitorToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodGet, "/api/support/chats", tc.token, nil)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("status: want=403 got=%d", rec.Code)
			}
		})
	}
}

func TestListChatsExcludesClosed(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.staffToken(t, uuid.New())

	open := fx.startConversation(t, "Ayşe")
	closed := fx.startConversation(t, "Mehmet")
	if _, err := fx.conversations.SetStatus(context.Background(), closed.ID, types.StatusClosed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	rec := fx.do(t, http.MethodGet, "/api/support/chats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body: %s)", rec.Code, rec.Body.String())
	}
	chats := decodeJSON[[]types.Conversation](t, rec)
	if len(chats) != 1 {
		t.Fatalf("chats: want=1 got=%d", len(chats))
	}
	if chats[0].ID != open.ID {
		t.Fatalf("chat id: want=%s got=%s", open.ID, chats[0].ID)
	}
}

func TestGetChatReturnsTranscriptAndMarksRead(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.staffToken(t, uuid.New())

	conv := fx.startConversation(t, "Ayşe")
	if _, err := fx.conversations.Append(context.Background(), conv.ID, services.AppendInput{
		SenderKind: types.SenderVisitor,
		Content:    "Yardım lazım",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec := fx.do(t, http.MethodGet, "/api/support/chats/"+conv.ID.String()+"?mark_read=1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body: %s)", rec.Code, rec.Body.String())
	}
	got := decodeJSON[types.Conversation](t, rec)
	if len(got.Messages) != 2 {
		t.Fatalf("messages: want=2 got=%d", len(got.Messages))
	}

	stored, err := fx.conversations.Get(context.Background(), conv.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, msg := range stored.Messages {
		if msg.SenderKind == types.SenderVisitor && !msg.Read {
			t.Fatalf("visitor message %s still unread", msg.ID)
		}
	}
}

func TestGetChatUnknownIDReturnsNotFound(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.staffToken(t, uuid.New())

	rec := fx.do(t, http.MethodGet, "/api/support/chats/"+uuid.NewString(), token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", rec.Code)
	}
	envelope := decodeJSON[map[string]map[string]string](t, rec)
	if envelope["error"]["message"] != "Sohbet bulunamadı" {
		t.Fatalf("message: got %q", envelope["error"]["message"])
	}

	rec = fx.do(t, http.MethodGet, "/api/support/chats/not-a-uuid", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status for malformed id: want=400 got=%d", rec.Code)
	}
}

func TestEndChatClosesAndNotifiesRoom(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.staffToken(t, uuid.New())

	conv := fx.startConversation(t, "Ayşe")
	visitor := realtime.NewClient(nil, realtime.ClientIdentity{Role: types.RoleGuest}, mustTestLogger(t))
	fx.hub.Join(conv.ID.String(), visitor)

	rec := fx.do(t, http.MethodPut, "/api/support/chats/"+conv.ID.String()+"/end", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body: %s)", rec.Code, rec.Body.String())
	}
	got := decodeJSON[types.Conversation](t, rec)
	if got.Status != types.StatusClosed {
		t.Fatalf("status: want=%s got=%s", types.StatusClosed, got.Status)
	}

	select {
	case env := <-visitor.Outbound():
		if env.Event != realtime.EventConversationEnded {
			t.Fatalf("event: want=%s got=%s", realtime.EventConversationEnded, env.Event)
		}
	case <-time.After(time.Second):
		t.Fatalf("visitor never saw conversation_ended")
	}
	if fx.hub.InRoom(conv.ID.String(), visitor) {
		t.Fatalf("room not cleared after end")
	}

	// Closing twice is a conflict, not a silent success.
	rec = fx.do(t, http.MethodPut, "/api/support/chats/"+conv.ID.String()+"/end", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second end: want=409 got=%d", rec.Code)
	}
}

func TestDeleteChatRemovesConversation(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.staffToken(t, uuid.New())

	conv := fx.startConversation(t, "Ayşe")
	rec := fx.do(t, http.MethodDelete, "/api/support/chats/"+conv.ID.String(), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeJSON[map[string]string](t, rec)
	if body["message"] != "Sohbet başarıyla silindi" {
		t.Fatalf("message: got %q", body["message"])
	}

	rec = fx.do(t, http.MethodGet, "/api/support/chats/"+conv.ID.String(), token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete: want=404 got=%d", rec.Code)
	}
}

func TestListTicketsFilters(t *testing.T) {
	fx := newAPIFixture(t)
	staffID := uuid.New()
	token := fx.staffToken(t, staffID)

	assigned := fx.startConversation(t, "Ayşe")
	fx.startConversation(t, "Mehmet")
	if _, err := fx.conversations.Assign(context.Background(), assigned.ID, staffID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	rec := fx.do(t, http.MethodGet, "/api/support/tickets?status=waiting", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	waiting := decodeJSON[[]types.Conversation](t, rec)
	if len(waiting) != 1 {
		t.Fatalf("waiting tickets: want=1 got=%d", len(waiting))
	}

	rec = fx.do(t, http.MethodGet, "/api/support/tickets?assigned_to="+staffID.String(), token, nil)
	mine := decodeJSON[[]types.Conversation](t, rec)
	if len(mine) != 1 || mine[0].ID != assigned.ID {
		t.Fatalf("assigned tickets: want exactly %s, got %d entries", assigned.ID, len(mine))
	}

	rec = fx.do(t, http.MethodGet, "/api/support/tickets?status=bogus", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: want=400 got=%d", rec.Code)
	}
	rec = fx.do(t, http.MethodGet, "/api/support/tickets?assigned_to=not-a-uuid", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid assigned_to: want=400 got=%d", rec.Code)
	}
}

func TestAssignTicketDefaultsToCaller(t *testing.T) {
	fx := newAPIFixture(t)
	staffID := uuid.New()
	token := fx.staffToken(t, staffID)

	conv := fx.startConversation(t, "Ayşe")
	rec := fx.do(t, http.MethodPut, "/api/support/tickets/"+conv.ID.String()+"/assign", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body: %s)", rec.Code, rec.Body.String())
	}
	got := decodeJSON[types.Conversation](t, rec)
	if got.AssignedStaff == nil || *got.AssignedStaff != staffID {
		t.Fatalf("assignee: want=%s got=%v", staffID, got.AssignedStaff)
	}
	if got.Status != types.StatusActive {
		t.Fatalf("status: want=%s got=%s", types.StatusActive, got.Status)
	}
}

func TestAssignTicketExplicitStaffID(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.staffToken(t, uuid.New())
	other := uuid.New()

	conv := fx.startConversation(t, "Ayşe")
	rec := fx.do(t, http.MethodPut, "/api/support/tickets/"+conv.ID.String()+"/assign", token,
		map[string]string{"staff_id": other.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body: %s)", rec.Code, rec.Body.String())
	}
	got := decodeJSON[types.Conversation](t, rec)
	if got.AssignedStaff == nil || *got.AssignedStaff != other {
		t.Fatalf("assignee: want=%s got=%v", other, got.AssignedStaff)
	}
}

func TestPresenceCountsDistinctStaff(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.staffToken(t, uuid.New())

	rec := fx.do(t, http.MethodGet, "/api/support/presence", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	body := decodeJSON[map[string]int](t, rec)
	if body["staff_online"] != 0 {
		t.Fatalf("staff_online: want=0 got=%d", body["staff_online"])
	}

	agent := realtime.NewClient(nil, realtime.ClientIdentity{Role: types.RoleStaff, SubjectID: uuid.New()}, mustTestLogger(t))
	fx.router.HandleEvent(context.Background(), agent, realtime.Envelope{Event: realtime.EventStaffJoin})

	rec = fx.do(t, http.MethodGet, "/api/support/presence", token, nil)
	body = decodeJSON[map[string]int](t, rec)
	if body["staff_online"] != 1 {
		t.Fatalf("staff_online: want=1 got=%d", body["staff_online"])
	}
}
