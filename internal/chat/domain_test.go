package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRoomCreatorIsOwnerAndMember(t *testing.T) {
	room := NewRoom("r1", "General", "", false, "alice")

	assert.Equal(t, "alice", room.OwnerSubject)
	assert.True(t, room.IsOwner("alice"))
	assert.True(t, room.HasMember("alice"))
	assert.Equal(t, []string{"alice"}, room.MemberList())
}

func TestAddMemberIdempotent(t *testing.T) {
	room := NewRoom("r1", "General", "", false, "alice")

	room.AddMember("carol")
	room.AddMember("carol")

	assert.Equal(t, []string{"alice", "carol"}, room.MemberList())
}

func TestRemoveMemberNeverRemovesOwner(t *testing.T) {
	room := NewRoom("r1", "General", "", false, "alice")
	room.AddMember("bob")

	room.RemoveMember("alice")
	assert.True(t, room.HasMember("alice"))

	room.RemoveMember("bob")
	assert.False(t, room.HasMember("bob"))
	assert.Equal(t, []string{"alice"}, room.MemberList())
}

func TestIsOwnerEmptySubject(t *testing.T) {
	room := NewRoom("r1", "General", "", false, "alice")
	assert.False(t, room.IsOwner(""))
	assert.False(t, room.IsOwner("bob"))
}
