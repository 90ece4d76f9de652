package chat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parley-chat/parley/internal/platform/httpx"
	"github.com/parley-chat/parley/internal/shared"
)

// Handler wires HTTP endpoints for rooms and message history.
type Handler struct {
	logger    *slog.Logger
	rooms     *RoomService
	messages  *MessageService
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, rooms *RoomService, messages *MessageService) *Handler {
	return &Handler{
		logger:    logger,
		rooms:     rooms,
		messages:  messages,
		validator: validator.New(),
	}
}

// MountRoutes registers chat routes on the provided router. Every route
// requires an authenticated principal; room-level rules decide the rest.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreateRoom)
	r.Get("/public", h.handleListPublic)
	r.Get("/mine", h.handleListMine)
	r.Get("/{roomID}", h.handleGetRoom)
	r.Post("/{roomID}/members", h.handleAddMember)
	r.Delete("/{roomID}/members/{username}", h.handleRemoveMember)
	r.Get("/{roomID}/messages", h.handleHistory)
	r.Post("/{roomID}/messages", h.handleSubmit)
}

type createRoomRequest struct {
	RoomID      string `json:"roomId" validate:"required,min=1,max=64"`
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
	IsPrivate   bool   `json:"isPrivate"`
}

type addMemberRequest struct {
	Username string `json:"username" validate:"required"`
}

type submitMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type roomResponse struct {
	RoomID       string    `json:"roomId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsPrivate    bool      `json:"isPrivate"`
	OwnerSubject string    `json:"owner"`
	Members      []string  `json:"members"`
	CreatedAt    time.Time `json:"createdAt"`
}

type messageResponse struct {
	ID            string    `json:"id"`
	SenderSubject string    `json:"sender"`
	RoomID        string    `json:"roomId"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
}

func toRoomResponse(room *Room) roomResponse {
	return roomResponse{
		RoomID:       room.RoomID,
		Name:         room.Name,
		Description:  room.Description,
		IsPrivate:    room.IsPrivate,
		OwnerSubject: room.OwnerSubject,
		Members:      room.MemberList(),
		CreatedAt:    room.CreatedAt,
	}
}

func toMessageResponse(msg Message) messageResponse {
	return messageResponse{
		ID:            msg.ID,
		SenderSubject: msg.SenderSubject,
		RoomID:        msg.RoomID,
		Content:       msg.Content,
		Timestamp:     msg.Timestamp,
	}
}

// principal resolves the caller identity or responds 401.
func principal(w http.ResponseWriter, r *http.Request) (*shared.Principal, bool) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return nil, false
	}
	return p, true
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createRoomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	room, err := h.rooms.Create(r.Context(), CreateRoomInput{
		RoomID:      req.RoomID,
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	}, p.Subject)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("room created",
		slog.String("roomId", room.RoomID), slog.String("owner", p.Subject))
	httpx.JSON(w, http.StatusCreated, toRoomResponse(room))
}

func (h *Handler) handleListPublic(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}
	rooms, err := h.rooms.ListPublic(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondRooms(w, rooms)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	rooms, err := h.rooms.ListForSubject(r.Context(), p.Subject)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondRooms(w, rooms)
}

func (h *Handler) respondRooms(w http.ResponseWriter, rooms []Room) {
	out := make([]roomResponse, len(rooms))
	for i := range rooms {
		out[i] = toRoomResponse(&rooms[i])
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	room, err := h.rooms.Get(r.Context(), chi.URLParam(r, "roomID"), p.Subject)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoomResponse(room))
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	roomID := chi.URLParam(r, "roomID")
	if err := h.rooms.AddMember(r.Context(), roomID, req.Username, p.Subject); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "roomID")
	target := chi.URLParam(r, "username")
	if err := h.rooms.RemoveMember(r.Context(), roomID, target, p.Subject); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	msgs, err := h.messages.History(r.Context(), chi.URLParam(r, "roomID"), p.Subject)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = toMessageResponse(m)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req submitMessageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	msg, err := h.messages.Submit(r.Context(), p.Subject, chi.URLParam(r, "roomID"), req.Content)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMessageResponse(*msg))
}
