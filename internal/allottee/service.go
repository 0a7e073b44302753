package allottee

import (
	"context"
	"time"

	"hostel/internal/apperr"
)

// Allottee is a student assigned (or assignable) to a hostel room.
// Hostel and Room are both set or both nil, never one of the two.
type Allottee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Roll         string    `json:"roll"`
	Hostel       *string   `json:"hostel"`
	Room         *string   `json:"room"`
	RegisteredBy string    `json:"registered_by"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Assigned reports whether the allottee currently has a room.
func (a Allottee) Assigned() bool {
	return a.Hostel != nil && a.Room != nil
}

// Repository is the persistence contract for allottee records.
type Repository interface {
	Insert(ctx context.Context, a Allottee) (Allottee, error)
	GetByID(ctx context.Context, id string) (*Allottee, error)
	GetByEmail(ctx context.Context, email string) (*Allottee, error)
	List(ctx context.Context) ([]Allottee, error)
	UpdateProfile(ctx context.Context, id, name, roll string) (*Allottee, error)
	Delete(ctx context.Context, id string) error
	IsAllocated(ctx context.Context, id string) (bool, error)
}

// Admins answers whether an actor is a recognized admin.
type Admins interface {
	AdminExists(ctx context.Context, email string) (bool, error)
}

// Service owns allottee registration and profile edits. Room assignment
// is the allocation engine's job and deliberately not reachable here.
type Service struct {
	repo   Repository
	admins Admins
}

// NewService creates a service backed by a repository.
func NewService(repo Repository, admins Admins) *Service {
	return &Service{repo: repo, admins: admins}
}

// Register creates an allottee on behalf of an admin.
func (s *Service) Register(ctx context.Context, name, email, roll, adminEmail string) (Allottee, error) {
	if email == "" {
		return Allottee{}, apperr.Validation("email is required")
	}
	ok, err := s.admins.AdminExists(ctx, adminEmail)
	if err != nil {
		return Allottee{}, err
	}
	if !ok {
		return Allottee{}, apperr.Unauthorized("unauthorized, admin not found")
	}
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return Allottee{}, err
	}
	if existing != nil {
		return Allottee{}, apperr.Conflict("allottee with this email already exists")
	}
	if name == "" {
		name = "New Allotee"
	}
	return s.repo.Insert(ctx, Allottee{
		Name:         name,
		Email:        email,
		Roll:         roll,
		RegisteredBy: adminEmail,
	})
}

// Get returns a single allottee.
func (s *Service) Get(ctx context.Context, id string) (Allottee, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Allottee{}, err
	}
	if a == nil {
		return Allottee{}, apperr.NotFound("allottee not found")
	}
	return *a, nil
}

// List returns all allottees.
func (s *Service) List(ctx context.Context) ([]Allottee, error) {
	return s.repo.List(ctx)
}

// Update edits name and roll. Hostel and room are owned by the
// allocation engine, so direct edits to them are not offered.
func (s *Service) Update(ctx context.Context, id, name, roll string) (Allottee, error) {
	if name == "" {
		return Allottee{}, apperr.Validation("name is required")
	}
	a, err := s.repo.UpdateProfile(ctx, id, name, roll)
	if err != nil {
		return Allottee{}, err
	}
	if a == nil {
		return Allottee{}, apperr.NotFound("allottee not found")
	}
	return *a, nil
}

// Delete removes an allottee. An allocated allottee must be deallocated
// first or the room's occupant list would dangle.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return apperr.NotFound("allottee not found")
	}
	allocated, err := s.repo.IsAllocated(ctx, id)
	if err != nil {
		return err
	}
	if allocated {
		return apperr.Conflict("allottee is allocated to a room, deallocate first")
	}
	return s.repo.Delete(ctx, id)
}
