package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/livedesk/backend/internal/http/response"
	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/realtime"
	"github.com/livedesk/backend/internal/repos"
	"github.com/livedesk/backend/internal/requestdata"
	"github.com/livedesk/backend/internal/services"
	"github.com/livedesk/backend/internal/types"
)

// SupportHandler is the staff-facing REST surface over the conversation
// store. Mutations that change what a live visitor sees (close) also fan
// out over the hub so dashboards and the visitor widget stay in sync.
type SupportHandler struct {
	log           *logger.Logger
	conversations services.ConversationService
	notifier      services.SupportNotifier
	hub           *realtime.Hub
	router        *services.SessionRouter
}

func NewSupportHandler(
	log *logger.Logger,
	conversations services.ConversationService,
	notifier services.SupportNotifier,
	hub *realtime.Hub,
	router *services.SessionRouter,
) *SupportHandler {
	return &SupportHandler{
		log:           log.With("handler", "SupportHandler"),
		conversations: conversations,
		notifier:      notifier,
		hub:           hub,
		router:        router,
	}
}

// GET /api/support/chats
func (h *SupportHandler) ListChats(c *gin.Context) {
	chats, err := h.conversations.List(c.Request.Context(), repos.ConversationFilter{ExcludeClosed: true})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_chats_failed", err)
		return
	}
	response.RespondOK(c, chats)
}

// GET /api/support/chats/:id
func (h *SupportHandler) GetChat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	markRead := c.Query("mark_read") == "1"
	conv, err := h.conversations.Get(c.Request.Context(), id, markRead)
	if err != nil {
		respondStoreError(c, "get_chat_failed", err)
		return
	}
	response.RespondOK(c, conv)
}

// PUT /api/support/chats/:id/end
func (h *SupportHandler) EndChat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	conv, err := h.conversations.SetStatus(c.Request.Context(), id, types.StatusClosed)
	if err != nil {
		respondStoreError(c, "end_chat_failed", err)
		return
	}

	roomID := id.String()
	h.notifier.ConversationEnded(roomID, id, "Sohbet sonlandırıldı")
	h.notifier.ConversationEnded(realtime.StaffRoom, id, "Sohbet sonlandırıldı")
	h.hub.ClearRoom(roomID)

	response.RespondOK(c, conv)
}

// DELETE /api/support/chats/:id
func (h *SupportHandler) DeleteChat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.conversations.Delete(c.Request.Context(), id); err != nil {
		respondStoreError(c, "delete_chat_failed", err)
		return
	}
	h.hub.ClearRoom(id.String())
	response.RespondOK(c, gin.H{"message": "Sohbet başarıyla silindi"})
}

// GET /api/support/tickets?status=&assigned_to=
func (h *SupportHandler) ListTickets(c *gin.Context) {
	filter := repos.ConversationFilter{}
	if status := c.Query("status"); status != "" {
		s := types.ConversationStatus(status)
		if !s.Valid() {
			response.RespondError(c, http.StatusBadRequest, "invalid_status", errors.New("unknown status"))
			return
		}
		filter.Status = s
	}
	if assigned := c.Query("assigned_to"); assigned != "" {
		staffID, err := uuid.Parse(assigned)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_assigned_to", err)
			return
		}
		filter.AssignedStaff = &staffID
	}
	tickets, err := h.conversations.List(c.Request.Context(), filter)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_tickets_failed", err)
		return
	}
	response.RespondOK(c, tickets)
}

// PUT /api/support/tickets/:id/assign
func (h *SupportHandler) AssignTicket(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		StaffID uuid.UUID `json:"staff_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	staffID := req.StaffID
	if staffID == uuid.Nil {
		// No explicit assignee: the calling staff member claims it.
		if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil {
			staffID = rd.SubjectID
		}
	}
	if staffID == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "missing_staff_id", errors.New("staff_id required"))
		return
	}

	conv, err := h.conversations.Assign(c.Request.Context(), id, staffID)
	if err != nil {
		respondStoreError(c, "assign_ticket_failed", err)
		return
	}
	response.RespondOK(c, conv)
}

// GET /api/support/presence
func (h *SupportHandler) Presence(c *gin.Context) {
	response.RespondOK(c, gin.H{"staff_online": h.router.StaffOnline()})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return uuid.Nil, false
	}
	return id, true
}

func respondStoreError(c *gin.Context, code string, err error) {
	switch {
	case errors.Is(err, repos.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New("Sohbet bulunamadı"))
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrConversationClosed):
		response.RespondError(c, http.StatusConflict, "invalid_transition", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, code, err)
	}
}
