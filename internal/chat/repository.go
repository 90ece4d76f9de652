package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-chat/parley/internal/platform/httpx"
)

// RoomRepository persists rooms and their membership sets.
type RoomRepository interface {
	Exists(ctx context.Context, roomID string) (bool, error)
	FindByID(ctx context.Context, roomID string) (*Room, error)
	Create(ctx context.Context, room *Room) error
	Save(ctx context.Context, room *Room) error
	ListPublic(ctx context.Context) ([]Room, error)
	ListForSubject(ctx context.Context, subject string) ([]Room, error)
}

// MessageRepository persists the append-only message history.
type MessageRepository interface {
	Save(ctx context.Context, msg Message) error
	ListByRoom(ctx context.Context, roomID string) ([]Message, error)
}

// PGRoomRepository provides PostgreSQL backed room persistence.
type PGRoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository constructs a room repository.
func NewRoomRepository(pool *pgxpool.Pool) *PGRoomRepository {
	return &PGRoomRepository{pool: pool}
}

// Exists reports whether a room with the given id is stored.
func (r *PGRoomRepository) Exists(ctx context.Context, roomID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM rooms WHERE room_id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, roomID).Scan(&exists); err != nil {
		return false, fmt.Errorf("chat: exists room %s: %w", roomID, err)
	}
	return exists, nil
}

// FindByID returns the room with the given id.
func (r *PGRoomRepository) FindByID(ctx context.Context, roomID string) (*Room, error) {
	const query = `
		SELECT room_id, name, description, is_private, owner_subject, members, created_at
		FROM rooms WHERE room_id = $1`
	room, err := scanRoom(r.pool.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chat: room %s: %w", roomID, httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("chat: find room %s: %w", roomID, err)
	}
	return room, nil
}

// Create inserts a new room. The unique constraint on rooms.room_id is the
// last line of defense against a duplicate-create race; a violation maps to
// ErrConflict.
func (r *PGRoomRepository) Create(ctx context.Context, room *Room) error {
	const query = `
		INSERT INTO rooms (room_id, name, description, is_private, owner_subject, members, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		room.RoomID, room.Name, room.Description, room.IsPrivate,
		room.OwnerSubject, room.MemberList(), room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("chat: room %s: %w", room.RoomID, httpx.ErrConflict)
		}
		return fmt.Errorf("chat: create room %s: %w", room.RoomID, err)
	}
	return nil
}

// Save writes back mutable room state (the member set).
func (r *PGRoomRepository) Save(ctx context.Context, room *Room) error {
	const query = `UPDATE rooms SET members = $2 WHERE room_id = $1`
	tag, err := r.pool.Exec(ctx, query, room.RoomID, room.MemberList())
	if err != nil {
		return fmt.Errorf("chat: save room %s: %w", room.RoomID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat: room %s: %w", room.RoomID, httpx.ErrNotFound)
	}
	return nil
}

// ListPublic returns all public rooms.
func (r *PGRoomRepository) ListPublic(ctx context.Context) ([]Room, error) {
	const query = `
		SELECT room_id, name, description, is_private, owner_subject, members, created_at
		FROM rooms WHERE NOT is_private ORDER BY created_at`
	return r.listRooms(ctx, query)
}

// ListForSubject returns the rooms subject belongs to.
func (r *PGRoomRepository) ListForSubject(ctx context.Context, subject string) ([]Room, error) {
	const query = `
		SELECT room_id, name, description, is_private, owner_subject, members, created_at
		FROM rooms WHERE $1 = ANY(members) ORDER BY created_at`
	return r.listRooms(ctx, query, subject)
}

func (r *PGRoomRepository) listRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chat: list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: scan room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func scanRoom(row pgx.Row) (*Room, error) {
	var room Room
	var members []string
	err := row.Scan(&room.RoomID, &room.Name, &room.Description, &room.IsPrivate,
		&room.OwnerSubject, &members, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	room.Members = make(map[string]struct{}, len(members))
	for _, m := range members {
		room.Members[m] = struct{}{}
	}
	return &room, nil
}

// PGMessageRepository provides PostgreSQL backed message persistence.
type PGMessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository constructs a message repository.
func NewMessageRepository(pool *pgxpool.Pool) *PGMessageRepository {
	return &PGMessageRepository{pool: pool}
}

// Save appends a message to the history.
func (r *PGMessageRepository) Save(ctx context.Context, msg Message) error {
	const query = `
		INSERT INTO messages (id, sender_subject, room_id, content, ts)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.SenderSubject, msg.RoomID, msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("chat: save message: %w", err)
	}
	return nil
}

// ListByRoom returns the room's messages ordered by timestamp ascending,
// ties broken by id.
func (r *PGMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]Message, error) {
	const query = `
		SELECT id, sender_subject, room_id, content, ts
		FROM messages WHERE room_id = $1 ORDER BY ts, id`
	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages %s: %w", roomID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderSubject, &m.RoomID, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
