package registry

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	name string
}

func (s *stubChannel) Send([]byte) error { return nil }
func (s *stubChannel) Close() error      { return nil }

func TestJoinRoomPreservesOrderAndIsIdempotent(t *testing.T) {
	r := New()
	r.Connect("a", &stubChannel{})
	r.Connect("b", &stubChannel{})

	r.JoinRoom("a", "lobby")
	r.JoinRoom("b", "lobby")
	r.JoinRoom("a", "lobby")

	assert.Equal(t, []string{"a", "b"}, r.RoomMembers("lobby"))
}

func TestRoomMembersOfUnknownRoomIsEmpty(t *testing.T) {
	r := New()

	members := r.RoomMembers("nowhere")
	require.NotNil(t, members)
	assert.Empty(t, members)
}

func TestRoomMembersReturnsCopy(t *testing.T) {
	r := New()
	r.JoinRoom("a", "lobby")

	members := r.RoomMembers("lobby")
	members[0] = "mutated"

	assert.Equal(t, []string{"a"}, r.RoomMembers("lobby"))
}

func TestDisconnectRemovesClientFromEveryRoom(t *testing.T) {
	r := New()
	r.Connect("a", &stubChannel{})
	r.Connect("b", &stubChannel{})
	r.JoinRoom("a", "one")
	r.JoinRoom("b", "one")
	r.JoinRoom("a", "two")

	left := r.Disconnect("a")

	assert.Equal(t, []string{"one", "two"}, left)
	assert.Equal(t, []string{"b"}, r.RoomMembers("one"))
	assert.Empty(t, r.RoomMembers("two"))
	_, ok := r.LookupChannel("a")
	assert.False(t, ok)

	clients, rooms := r.Stats()
	assert.Equal(t, 1, clients)
	assert.Equal(t, 1, rooms)
}

func TestDisconnectUnknownClientIsNoop(t *testing.T) {
	r := New()
	r.JoinRoom("a", "lobby")

	assert.NotPanics(t, func() {
		assert.Empty(t, r.Disconnect("ghost"))
	})
	assert.Equal(t, []string{"a"}, r.RoomMembers("lobby"))
}

func TestConnectReplacesExistingChannel(t *testing.T) {
	r := New()
	first := &stubChannel{name: "first"}
	second := &stubChannel{name: "second"}

	assert.Nil(t, r.Connect("a", first))
	assert.Same(t, first, r.Connect("a", second))

	ch, ok := r.LookupChannel("a")
	require.True(t, ok)
	assert.Same(t, second, ch)
}

func TestConnectUniqueRejectsDuplicate(t *testing.T) {
	r := New()
	first := &stubChannel{}

	require.NoError(t, r.ConnectUnique("a", first))
	err := r.ConnectUnique("a", &stubChannel{})
	assert.ErrorIs(t, err, ErrDuplicateClient)

	ch, _ := r.LookupChannel("a")
	assert.Same(t, first, ch)
}

func TestPeersExcludesSenderAndDisconnectedMembers(t *testing.T) {
	r := New()
	bCh := &stubChannel{name: "b"}
	r.Connect("a", &stubChannel{})
	r.Connect("b", bCh)
	r.JoinRoom("a", "lobby")
	r.JoinRoom("b", "lobby")
	// c joined without a live channel
	r.JoinRoom("c", "lobby")

	targets := r.Peers("lobby", "a")

	require.Len(t, targets, 1)
	assert.Equal(t, "b", targets[0].ID)
	assert.Same(t, bCh, targets[0].Channel)
	assert.Empty(t, r.Peers("missing", "a"))
}

func TestRoomsSnapshotIsSorted(t *testing.T) {
	r := New()
	r.JoinRoom("a", "zeta")
	r.JoinRoom("b", "alpha")
	r.JoinRoom("c", "alpha")

	assert.Equal(t, []RoomSnapshot{
		{ID: "alpha", Members: []string{"b", "c"}},
		{ID: "zeta", Members: []string{"a"}},
	}, r.Rooms())
}

func TestNoEmptyRoomsUnderRandomOperations(t *testing.T) {
	r := New()
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c", "d"}
	rooms := []string{"x", "y", "z"}

	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0:
			r.Connect(id, &stubChannel{})
		case 1:
			r.JoinRoom(id, rooms[rng.Intn(len(rooms))])
		case 2:
			r.Disconnect(id)
			for _, room := range r.Rooms() {
				assert.NotContains(t, room.Members, id)
			}
		}

		for _, room := range r.Rooms() {
			require.NotEmpty(t, room.Members, "room %s is empty after step %d", room.ID, i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", n)
			r.Connect(id, &stubChannel{})
			r.JoinRoom(id, "shared")
			_ = r.Peers("shared", id)
			_ = r.RoomMembers("shared")
			r.Disconnect(id)
		}(i)
	}
	wg.Wait()

	clients, rooms := r.Stats()
	assert.Zero(t, clients)
	assert.Zero(t, rooms)
}
