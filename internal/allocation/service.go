package allocation

import (
	"context"

	"hostel/internal/allottee"
	"hostel/internal/apperr"
)

// Room is a hostel room. Number is unique within a block.
type Room struct {
	ID        string              `json:"id"`
	Number    string              `json:"number"`
	Block     string              `json:"block"`
	Floor     string              `json:"floor"`
	Capacity  int                 `json:"capacity"`
	Occupants []allottee.Allottee `json:"allotees"`
}

// RoomUpdate carries optional room edits; nil fields are left untouched.
type RoomUpdate struct {
	Number   *string `json:"number"`
	Block    *string `json:"block"`
	Floor    *string `json:"floor"`
	Capacity *int    `json:"capacity"`
}

// Repository is the persistence contract for rooms and occupancy.
// Assign and Unassign mutate the occupant list and the allottee
// back-pointer as one unit, committing or rolling back together.
type Repository interface {
	InsertRoom(ctx context.Context, r Room) (Room, error)
	GetRoom(ctx context.Context, id string) (*Room, error)
	FindRoom(ctx context.Context, block, number string) (*Room, error)
	ListRooms(ctx context.Context, block, floor string) ([]Room, error)
	UpdateRoom(ctx context.Context, r Room) error
	DeleteRoom(ctx context.Context, id string) error
	RoomOf(ctx context.Context, allotteeID string) (*Room, error)
	GetAllottee(ctx context.Context, id string) (*allottee.Allottee, error)
	Assign(ctx context.Context, roomID, allotteeID, hostelLabel, roomNumber string) error
	Unassign(ctx context.Context, roomID, allotteeID string) error
	Unallocated(ctx context.Context) ([]allottee.Allottee, error)
}

// Service enforces the occupancy invariants: a room never exceeds its
// capacity, and an allottee occupies at most one room system-wide.
type Service struct {
	repo  Repository
	locks *keyedLock
}

// NewService creates a service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, locks: newKeyedLock()}
}

// Allot assigns an allottee to a room. The allottee must not already
// occupy any room and the target room must have spare capacity.
func (s *Service) Allot(ctx context.Context, roomID, allotteeID string) (Room, error) {
	if allotteeID == "" {
		return Room{}, apperr.Validation("allottee id is required")
	}
	release := s.locks.acquire(roomID, allotteeID)
	defer release()

	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	if room == nil {
		return Room{}, apperr.NotFound("room not found")
	}
	if len(room.Occupants) >= room.Capacity {
		return Room{}, apperr.Conflict("room is already at full capacity")
	}

	a, err := s.repo.GetAllottee(ctx, allotteeID)
	if err != nil {
		return Room{}, err
	}
	if a == nil {
		return Room{}, apperr.NotFound("allottee not found")
	}

	occupied, err := s.repo.RoomOf(ctx, allotteeID)
	if err != nil {
		return Room{}, err
	}
	if occupied != nil {
		return Room{}, apperr.Conflict("allottee is already allotted to room %s", occupied.Number)
	}

	if err := s.repo.Assign(ctx, room.ID, allotteeID, "Block "+room.Block, room.Number); err != nil {
		return Room{}, err
	}

	updated, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	return *updated, nil
}

// Deallocate removes an allottee from the room it occupies and clears
// the allottee's hostel and room fields.
func (s *Service) Deallocate(ctx context.Context, roomID, allotteeID string) (Room, error) {
	if allotteeID == "" {
		return Room{}, apperr.Validation("allottee id is required")
	}
	release := s.locks.acquire(roomID, allotteeID)
	defer release()

	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	if room == nil {
		return Room{}, apperr.NotFound("room not found")
	}

	a, err := s.repo.GetAllottee(ctx, allotteeID)
	if err != nil {
		return Room{}, err
	}
	if a == nil {
		return Room{}, apperr.NotFound("allottee not found")
	}

	member := false
	for _, occ := range room.Occupants {
		if occ.ID == allotteeID {
			member = true
			break
		}
	}
	if !member {
		return Room{}, apperr.Conflict("allottee is not allotted to this room")
	}

	if err := s.repo.Unassign(ctx, room.ID, allotteeID); err != nil {
		return Room{}, err
	}

	updated, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	return *updated, nil
}

// Unallocated returns every allottee not present in any room's occupant
// list. When nothing is occupied this is all allottees.
func (s *Service) Unallocated(ctx context.Context) ([]allottee.Allottee, error) {
	return s.repo.Unallocated(ctx)
}

// CreateRoom registers a new room. Room numbers are unique per block.
func (s *Service) CreateRoom(ctx context.Context, number, block, floor string, capacity int) (Room, error) {
	if number == "" || block == "" || floor == "" {
		return Room{}, apperr.Validation("number, block and floor are required")
	}
	if capacity == 0 {
		capacity = 2
	}
	if capacity < 0 {
		return Room{}, apperr.Validation("capacity must be a positive integer")
	}
	existing, err := s.repo.FindRoom(ctx, block, number)
	if err != nil {
		return Room{}, err
	}
	if existing != nil {
		return Room{}, apperr.Conflict("room with this number already exists in this hostel block")
	}
	return s.repo.InsertRoom(ctx, Room{Number: number, Block: block, Floor: floor, Capacity: capacity})
}

// GetRoom returns a room with resolved occupant details.
func (s *Service) GetRoom(ctx context.Context, id string) (Room, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return Room{}, err
	}
	if room == nil {
		return Room{}, apperr.NotFound("room not found")
	}
	return *room, nil
}

// ListRooms returns rooms, optionally filtered by block and floor.
func (s *Service) ListRooms(ctx context.Context, block, floor string) ([]Room, error) {
	return s.repo.ListRooms(ctx, block, floor)
}

// UpdateRoom edits room attributes. Number and block are frozen while
// the room is occupied because occupant back-pointers embed them, and
// capacity can never shrink below current occupancy.
func (s *Service) UpdateRoom(ctx context.Context, id string, upd RoomUpdate) (Room, error) {
	release := s.locks.acquire(id)
	defer release()

	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return Room{}, err
	}
	if room == nil {
		return Room{}, apperr.NotFound("room not found")
	}

	next := *room
	if upd.Number != nil {
		next.Number = *upd.Number
	}
	if upd.Block != nil {
		next.Block = *upd.Block
	}
	if upd.Floor != nil {
		next.Floor = *upd.Floor
	}
	if upd.Capacity != nil {
		next.Capacity = *upd.Capacity
	}

	if next.Number == "" || next.Block == "" || next.Floor == "" {
		return Room{}, apperr.Validation("number, block and floor are required")
	}
	if next.Capacity <= 0 {
		return Room{}, apperr.Validation("capacity must be a positive integer")
	}
	if next.Capacity < len(room.Occupants) {
		return Room{}, apperr.Conflict("capacity cannot be below current occupancy of %d", len(room.Occupants))
	}
	relabeled := next.Number != room.Number || next.Block != room.Block
	if relabeled && len(room.Occupants) > 0 {
		return Room{}, apperr.Conflict("cannot renumber an occupied room")
	}
	if relabeled {
		dup, err := s.repo.FindRoom(ctx, next.Block, next.Number)
		if err != nil {
			return Room{}, err
		}
		if dup != nil && dup.ID != id {
			return Room{}, apperr.Conflict("room with this number already exists in this hostel block")
		}
	}

	if err := s.repo.UpdateRoom(ctx, next); err != nil {
		return Room{}, err
	}
	updated, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return Room{}, err
	}
	return *updated, nil
}

// DeleteRoom removes an empty room. Occupied rooms must be drained first.
func (s *Service) DeleteRoom(ctx context.Context, id string) error {
	release := s.locks.acquire(id)
	defer release()

	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	if room == nil {
		return apperr.NotFound("room not found")
	}
	if len(room.Occupants) > 0 {
		return apperr.Conflict("room has occupants, deallocate them first")
	}
	return s.repo.DeleteRoom(ctx, id)
}
