package service

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/stretchr/testify/assert"
)

type brokenConn struct{ id string }

func (c brokenConn) ID() string { return c.id }

func (c brokenConn) Send(domain.Notification) error { return errors.New("closed") }

func TestSessionRegistryBindAndLookup(t *testing.T) {
	r := NewSessionRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := newConn("a")

	_, hadPrev, displaced := r.Bind(a, "m1", "p1")
	assert.False(t, hadPrev)
	assert.Empty(t, displaced)

	b, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, Binding{ConnID: "a", MeetingID: "m1", ParticipantID: "p1"}, b)

	prev, hadPrev, _ := r.Bind(a, "m2", "p9")
	assert.True(t, hadPrev)
	assert.Equal(t, "m1", prev.MeetingID)
	assert.Equal(t, 0, r.RoomSize("m1"))
	assert.Equal(t, 1, r.RoomSize("m2"))

	got, ok := r.Unbind("a")
	assert.True(t, ok)
	assert.Equal(t, "m2", got.MeetingID)
	_, ok = r.Unbind("a")
	assert.False(t, ok)
	_, ok = r.Lookup("a")
	assert.False(t, ok)
}

func TestSessionRegistryDisplacesOlderConnection(t *testing.T) {
	r := NewSessionRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	old, fresh := newConn("old"), newConn("new")

	r.Bind(old, "m1", "p1")
	_, _, displaced := r.Bind(fresh, "m1", "p1")
	assert.Equal(t, "old", displaced)
	assert.Equal(t, 1, r.RoomSize("m1"))

	_, ok := r.Unbind("old")
	assert.False(t, ok)
	_, ok = r.Lookup("new")
	assert.True(t, ok)
}

func TestSessionRegistryBroadcast(t *testing.T) {
	r := NewSessionRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a, b, other := newConn("a"), newConn("b"), newConn("other")
	r.Bind(a, "m1", "p1")
	r.Bind(b, "m1", "p2")
	r.Bind(brokenConn{id: "broken"}, "m1", "p3")
	r.Bind(other, "m2", "p4")

	n := domain.Notification{Type: domain.NotifyNewMessage}
	r.Broadcast("m1", n, "a")

	assert.Empty(t, a.all())
	assert.Equal(t, []domain.Notification{n}, b.all())
	assert.Empty(t, other.all())

	r.Broadcast("m1", n, "")
	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 2)
}
