package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/platform/broker"
	"github.com/parley-chat/parley/internal/platform/httpx"
	"github.com/parley-chat/parley/internal/shared"
)

// Event is an audit record of a room lifecycle or membership change.
type Event struct {
	Kind   string `json:"kind"`
	RoomID string `json:"roomId"`
	Actor  string `json:"actor"`
	Target string `json:"target,omitempty"`
}

// Audit event kinds.
const (
	EventRoomCreated   = "room.created"
	EventMemberAdded   = "member.added"
	EventMemberRemoved = "member.removed"
)

// Recorder receives audit events. Recording is fire-and-forget; a failing
// recorder never blocks or fails the mutation it describes.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// RoomService owns room identity, privacy, ownership and membership, and
// enforces the membership state machine. All read-modify-write mutations on
// one room are serialized through a per-room mutex; distinct rooms proceed
// concurrently.
type RoomService struct {
	repo     RoomRepository
	locks    *shared.KeyMutex
	recorder Recorder
	logger   *slog.Logger
}

// NewRoomService constructs a RoomService. recorder may be nil when no
// audit trail is wired.
func NewRoomService(repo RoomRepository, recorder Recorder, logger *slog.Logger) *RoomService {
	return &RoomService{
		repo:     repo,
		locks:    shared.NewKeyMutex(),
		recorder: recorder,
		logger:   logger,
	}
}

// CreateRoomInput carries the caller-supplied room metadata.
type CreateRoomInput struct {
	RoomID      string
	Name        string
	Description string
	IsPrivate   bool
}

// Create transitions a room from does-not-exist to exists, with the creator
// as owner and sole member. A duplicate id fails with ErrConflict.
func (s *RoomService) Create(ctx context.Context, input CreateRoomInput, creator string) (*Room, error) {
	s.locks.Lock(input.RoomID)
	defer s.locks.Unlock(input.RoomID)

	exists, err := s.repo.Exists(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("chat: room %s: %w", input.RoomID, httpx.ErrConflict)
	}

	room := NewRoom(input.RoomID, input.Name, input.Description, input.IsPrivate, creator)
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, err
	}
	s.record(ctx, Event{Kind: EventRoomCreated, RoomID: room.RoomID, Actor: creator})
	return room, nil
}

// Get returns a room. Private room metadata is only visible to members.
func (s *RoomService) Get(ctx context.Context, roomID, subject string) (*Room, error) {
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsPrivate && !room.HasMember(subject) {
		return nil, fmt.Errorf("chat: room %s: %w", roomID, httpx.ErrForbidden)
	}
	return room, nil
}

// AddMember adds target to the room. Only current members may add; adding
// an existing member is a no-op.
func (s *RoomService) AddMember(ctx context.Context, roomID, target, requester string) error {
	s.locks.Lock(roomID)
	defer s.locks.Unlock(roomID)

	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasMember(requester) {
		return fmt.Errorf("chat: only members may add members: %w", httpx.ErrForbidden)
	}
	room.AddMember(target)
	if err := s.repo.Save(ctx, room); err != nil {
		return err
	}
	s.record(ctx, Event{Kind: EventMemberAdded, RoomID: roomID, Actor: requester, Target: target})
	return nil
}

// RemoveMember removes target from the room. A requester must be the owner
// or the target themselves, and nobody but the owner may remove the owner.
// The owner self-removal path passes these checks and ends as a silent
// no-op at the member set, so a room never goes ownerless.
func (s *RoomService) RemoveMember(ctx context.Context, roomID, target, requester string) error {
	s.locks.Lock(roomID)
	defer s.locks.Unlock(roomID)

	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsOwner(requester) && target != requester {
		return fmt.Errorf("chat: only the owner may remove other members: %w", httpx.ErrForbidden)
	}
	if room.IsOwner(target) && target != requester {
		return fmt.Errorf("chat: the owner cannot be removed: %w", httpx.ErrForbidden)
	}
	room.RemoveMember(target)
	if err := s.repo.Save(ctx, room); err != nil {
		return err
	}
	s.record(ctx, Event{Kind: EventMemberRemoved, RoomID: roomID, Actor: requester, Target: target})
	return nil
}

// CheckAccess reports whether subject may read and write the room. Public
// rooms grant access to any subject; private rooms require membership.
func (s *RoomService) CheckAccess(ctx context.Context, roomID, subject string) (bool, error) {
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsPrivate {
		return true, nil
	}
	return room.HasMember(subject), nil
}

// ListPublic returns all public rooms.
func (s *RoomService) ListPublic(ctx context.Context) ([]Room, error) {
	return s.repo.ListPublic(ctx)
}

// ListForSubject returns the rooms subject is a member of.
func (s *RoomService) ListForSubject(ctx context.Context, subject string) ([]Room, error) {
	return s.repo.ListForSubject(ctx, subject)
}

// provision creates a public room owned by sender if roomID does not exist
// yet. Caller must hold the room lock.
func (s *RoomService) provision(ctx context.Context, roomID, sender string) error {
	exists, err := s.repo.Exists(ctx, roomID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	room := NewRoom(roomID, "Room "+roomID, "Automatically created room", false, sender)
	if err := s.repo.Create(ctx, room); err != nil {
		return err
	}
	s.record(ctx, Event{Kind: EventRoomCreated, RoomID: roomID, Actor: sender})
	return nil
}

func (s *RoomService) record(ctx context.Context, event Event) {
	if s.recorder != nil {
		s.recorder.Record(ctx, event)
	}
}

// MessageService validates sender access, persists messages and fans them
// out to the room's broadcast topic.
type MessageService struct {
	rooms  *RoomService
	repo   MessageRepository
	broker broker.Broker
	logger *slog.Logger
	now    func() time.Time
}

// NewMessageService constructs a MessageService.
func NewMessageService(rooms *RoomService, repo MessageRepository, b broker.Broker, logger *slog.Logger) *MessageService {
	return &MessageService{
		rooms:  rooms,
		repo:   repo,
		broker: b,
		logger: logger,
		now:    time.Now,
	}
}

// BroadcastPayload is the wire form of a fanned-out message.
type BroadcastPayload struct {
	ID            string    `json:"id"`
	SenderSubject string    `json:"sender"`
	RoomID        string    `json:"roomId"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
}

// Submit persists a message from sender to roomID and publishes it to the
// room topic. A message to an unknown room first provisions a public room
// owned by the sender: a deliberate convenience policy, not an error path.
// Fan-out is best effort; a publish failure is logged, never surfaced.
func (s *MessageService) Submit(ctx context.Context, sender, roomID, content string) (*Message, error) {
	s.rooms.locks.Lock(roomID)
	err := s.rooms.provision(ctx, roomID, sender)
	s.rooms.locks.Unlock(roomID)
	if err != nil {
		return nil, err
	}

	ok, err := s.rooms.CheckAccess(ctx, roomID, sender)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chat: %s is not a member of private room %s: %w", sender, roomID, httpx.ErrForbidden)
	}

	msg := Message{
		ID:            uuid.NewString(),
		SenderSubject: sender,
		RoomID:        roomID,
		Content:       content,
		Timestamp:     s.now(),
	}
	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(BroadcastPayload(msg))
	if err == nil {
		err = s.broker.Publish(ctx, broker.RoomTopic(roomID), payload)
	}
	if err != nil {
		s.logger.Warn("message fan-out failed",
			slog.String("roomId", roomID), slog.Any("error", err))
	}
	return &msg, nil
}

// History returns the room's messages ordered by timestamp ascending, gated
// by the same access check as Submit. An empty history is not an error.
func (s *MessageService) History(ctx context.Context, roomID, requester string) ([]Message, error) {
	ok, err := s.rooms.CheckAccess(ctx, roomID, requester)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chat: %s has no access to room %s: %w", requester, roomID, httpx.ErrForbidden)
	}
	return s.repo.ListByRoom(ctx, roomID)
}
