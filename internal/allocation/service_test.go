package allocation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel/internal/allottee"
	"hostel/internal/apperr"
)

// fakeRepo is an in-memory Repository. Assign and Unassign mutate both
// sides of the link atomically under a mutex, like the SQL transaction
// in the real repo.
type fakeRepo struct {
	mu        sync.Mutex
	rooms     map[string]Room
	allottees map[string]allottee.Allottee
	occupancy map[string]string // allottee id -> room id
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rooms:     make(map[string]Room),
		allottees: make(map[string]allottee.Allottee),
		occupancy: make(map[string]string),
	}
}

func (f *fakeRepo) addRoom(id, number, block string, capacity int) {
	f.rooms[id] = Room{ID: id, Number: number, Block: block, Floor: "1", Capacity: capacity}
}

func (f *fakeRepo) addAllottee(id, name string) {
	f.allottees[id] = allottee.Allottee{ID: id, Name: name, Email: name + "@hostel.test"}
}

func (f *fakeRepo) InsertRoom(ctx context.Context, r Room) (Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == "" {
		r.ID = fmt.Sprintf("room-%d", len(f.rooms)+1)
	}
	f.rooms[r.ID] = r
	return r, nil
}

func (f *fakeRepo) GetRoom(ctx context.Context, id string) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, nil
	}
	out := r
	out.Occupants = nil
	for aid, rid := range f.occupancy {
		if rid == id {
			out.Occupants = append(out.Occupants, f.allottees[aid])
		}
	}
	return &out, nil
}

func (f *fakeRepo) FindRoom(ctx context.Context, block, number string) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Block == block && r.Number == number {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListRooms(ctx context.Context, block, floor string) ([]Room, error) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.rooms))
	for id, r := range f.rooms {
		if block != "" && r.Block != block {
			continue
		}
		if floor != "" && r.Floor != floor {
			continue
		}
		ids = append(ids, id)
	}
	f.mu.Unlock()

	var res []Room
	for _, id := range ids {
		r, _ := f.GetRoom(ctx, id)
		res = append(res, *r)
	}
	return res, nil
}

func (f *fakeRepo) UpdateRoom(ctx context.Context, r Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.rooms[r.ID]
	stored.Number, stored.Block, stored.Floor, stored.Capacity = r.Number, r.Block, r.Floor, r.Capacity
	f.rooms[r.ID] = stored
	return nil
}

func (f *fakeRepo) DeleteRoom(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	return nil
}

func (f *fakeRepo) RoomOf(ctx context.Context, allotteeID string) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rid, ok := f.occupancy[allotteeID]
	if !ok {
		return nil, nil
	}
	r := f.rooms[rid]
	return &r, nil
}

func (f *fakeRepo) GetAllottee(ctx context.Context, id string) (*allottee.Allottee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.allottees[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeRepo) Assign(ctx context.Context, roomID, allotteeID, hostelLabel, roomNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.occupancy[allotteeID]; taken {
		return fmt.Errorf("unique violation: allottee %s already assigned", allotteeID)
	}
	f.occupancy[allotteeID] = roomID
	a := f.allottees[allotteeID]
	a.Hostel = &hostelLabel
	a.Room = &roomNumber
	f.allottees[allotteeID] = a
	return nil
}

func (f *fakeRepo) Unassign(ctx context.Context, roomID, allotteeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.occupancy, allotteeID)
	a := f.allottees[allotteeID]
	a.Hostel = nil
	a.Room = nil
	f.allottees[allotteeID] = a
	return nil
}

func (f *fakeRepo) Unallocated(ctx context.Context) ([]allottee.Allottee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []allottee.Allottee
	for id, a := range f.allottees {
		if _, taken := f.occupancy[id]; !taken {
			res = append(res, a)
		}
	}
	return res, nil
}

func TestAllotHappyPath(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addAllottee("a1", "alice")
	svc := NewService(repo)

	room, err := svc.Allot(context.Background(), "r1", "a1")
	require.NoError(t, err)
	require.Len(t, room.Occupants, 1)
	assert.Equal(t, "a1", room.Occupants[0].ID)

	// Back-pointer set on the allottee
	a, _ := repo.GetAllottee(context.Background(), "a1")
	require.NotNil(t, a.Room)
	require.NotNil(t, a.Hostel)
	assert.Equal(t, "101", *a.Room)
	assert.Equal(t, "Block A", *a.Hostel)
}

func TestAllotRejectsSecondRoom(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addRoom("r2", "102", "A", 2)
	repo.addAllottee("a1", "alice")
	svc := NewService(repo)

	_, err := svc.Allot(context.Background(), "r1", "a1")
	require.NoError(t, err)

	_, err = svc.Allot(context.Background(), "r2", "a1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "101", "error should name the room already occupied")
}

func TestAllotCapacityExceeded(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addAllottee("a1", "alice")
	repo.addAllottee("a2", "bob")
	repo.addAllottee("a3", "carol")
	svc := NewService(repo)

	_, err := svc.Allot(context.Background(), "r1", "a1")
	require.NoError(t, err)
	room, err := svc.Allot(context.Background(), "r1", "a2")
	require.NoError(t, err)
	assert.Len(t, room.Occupants, 2)

	_, err = svc.Allot(context.Background(), "r1", "a3")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "capacity")
}

func TestAllotMissingEntities(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addAllottee("a1", "alice")
	svc := NewService(repo)

	_, err := svc.Allot(context.Background(), "nope", "a1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Allot(context.Background(), "r1", "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeallocate(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addRoom("r2", "102", "A", 2)
	repo.addAllottee("a1", "alice")
	svc := NewService(repo)

	_, err := svc.Allot(context.Background(), "r1", "a1")
	require.NoError(t, err)

	// Wrong room
	_, err = svc.Deallocate(context.Background(), "r2", "a1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	room, err := svc.Deallocate(context.Background(), "r1", "a1")
	require.NoError(t, err)
	assert.Empty(t, room.Occupants)

	a, _ := repo.GetAllottee(context.Background(), "a1")
	assert.Nil(t, a.Room)
	assert.Nil(t, a.Hostel)
}

func TestUnallocated(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addAllottee("a1", "alice")
	repo.addAllottee("a2", "bob")
	svc := NewService(repo)

	// Rooms exist but none occupied: everyone is unallocated
	list, err := svc.Unallocated(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.Allot(context.Background(), "r1", "a1")
	require.NoError(t, err)

	list, err = svc.Unallocated(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a2", list[0].ID)
}

func TestCreateRoomValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateRoom(ctx, "", "A", "1", 2)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	room, err := svc.CreateRoom(ctx, "101", "A", "1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, room.Capacity, "capacity defaults to 2")

	// Same number in the same block is a duplicate
	_, err = svc.CreateRoom(ctx, "101", "A", "1", 3)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Same number in another block is fine
	_, err = svc.CreateRoom(ctx, "101", "B", "1", 3)
	assert.NoError(t, err)
}

func TestUpdateRoomGuards(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addAllottee("a1", "alice")
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Allot(ctx, "r1", "a1")
	require.NoError(t, err)

	one := 1
	room, err := svc.UpdateRoom(ctx, "r1", RoomUpdate{Capacity: &one})
	require.NoError(t, err, "capacity may shrink down to current occupancy")
	assert.Equal(t, 1, room.Capacity)

	zero := 0
	_, err = svc.UpdateRoom(ctx, "r1", RoomUpdate{Capacity: &zero})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	renumber := "999"
	_, err = svc.UpdateRoom(ctx, "r1", RoomUpdate{Number: &renumber})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "occupied rooms cannot be renumbered")

	_, err = svc.Deallocate(ctx, "r1", "a1")
	require.NoError(t, err)
	room, err = svc.UpdateRoom(ctx, "r1", RoomUpdate{Number: &renumber})
	require.NoError(t, err)
	assert.Equal(t, "999", room.Number)
}

func TestDeleteRoomRequiresEmpty(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addAllottee("a1", "alice")
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Allot(ctx, "r1", "a1")
	require.NoError(t, err)

	err = svc.DeleteRoom(ctx, "r1")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = svc.Deallocate(ctx, "r1", "a1")
	require.NoError(t, err)
	assert.NoError(t, svc.DeleteRoom(ctx, "r1"))
}

// TestConcurrentAllotSameAllottee races two rooms over one allottee.
// Exactly one allocation must win.
func TestConcurrentAllotSameAllottee(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	repo.addRoom("r2", "102", "A", 2)
	repo.addAllottee("a1", "alice")
	svc := NewService(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, roomID := range []string{"r1", "r2"} {
		wg.Add(1)
		go func(i int, roomID string) {
			defer wg.Done()
			_, errs[i] = svc.Allot(context.Background(), roomID, "a1")
		}(i, roomID)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		}
	}
	assert.Equal(t, 1, failures, "exactly one of the two racing allots must fail")

	room1, _ := repo.GetRoom(context.Background(), "r1")
	room2, _ := repo.GetRoom(context.Background(), "r2")
	assert.Equal(t, 1, len(room1.Occupants)+len(room2.Occupants))
}

// TestConcurrentAllotCapacity races many allottees into one small room.
func TestConcurrentAllotCapacity(t *testing.T) {
	repo := newFakeRepo()
	repo.addRoom("r1", "101", "A", 2)
	svc := NewService(repo)

	const n = 8
	for i := 0; i < n; i++ {
		repo.addAllottee(fmt.Sprintf("a%d", i), fmt.Sprintf("student%d", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Allot(context.Background(), "r1", fmt.Sprintf("a%d", i)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	room, _ := repo.GetRoom(context.Background(), "r1")
	assert.LessOrEqual(t, len(room.Occupants), room.Capacity)
}
