// Package chat implements the room directory and message routing: the
// membership state machine, its access rules, and best-effort fan-out of
// persisted messages to room subscribers.
package chat

import (
	"sort"
	"time"
)

// Room is a conversation with an owner and a membership set. The owner is
// always a member; the member set is never empty while the room exists.
type Room struct {
	RoomID       string
	Name         string
	Description  string
	IsPrivate    bool
	OwnerSubject string
	Members      map[string]struct{}
	CreatedAt    time.Time
}

// NewRoom constructs a room owned by creator, with the creator as its only
// member.
func NewRoom(roomID, name, description string, isPrivate bool, creator string) *Room {
	return &Room{
		RoomID:       roomID,
		Name:         name,
		Description:  description,
		IsPrivate:    isPrivate,
		OwnerSubject: creator,
		Members:      map[string]struct{}{creator: {}},
		CreatedAt:    time.Now(),
	}
}

// AddMember adds subject to the member set. Adding an existing member is a
// no-op, not an error.
func (r *Room) AddMember(subject string) {
	if r.Members == nil {
		r.Members = make(map[string]struct{})
	}
	r.Members[subject] = struct{}{}
}

// RemoveMember removes subject from the member set. The owner is never
// removed here, whoever asks; the service layer enforces who may remove
// whom before this is reached.
func (r *Room) RemoveMember(subject string) {
	if subject == r.OwnerSubject {
		return
	}
	delete(r.Members, subject)
}

// HasMember reports whether subject is in the member set.
func (r *Room) HasMember(subject string) bool {
	_, ok := r.Members[subject]
	return ok
}

// IsOwner reports whether subject owns the room.
func (r *Room) IsOwner(subject string) bool {
	return subject != "" && subject == r.OwnerSubject
}

// MemberList returns the members in stable sorted order.
func (r *Room) MemberList() []string {
	members := make([]string, 0, len(r.Members))
	for m := range r.Members {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// Message is one chat message. Messages are immutable and append-only,
// ordered by timestamp ascending with ties broken by id.
type Message struct {
	ID            string
	SenderSubject string
	RoomID        string
	Content       string
	Timestamp     time.Time
}
