package complaint

import (
	"context"
	"time"

	"hostel/internal/apperr"
)

// Status of a complaint. Transitions only move forward:
// Open -> In Progress -> Resolved.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
)

// Priority of a complaint.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// StudentRef is the resolved identity of the complaining student.
type StudentRef struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Complaint is a maintenance or living issue raised by a student.
// Resolution is non-empty only when Status is Resolved. Student is nil
// when the stored reference no longer resolves; it is never backfilled.
type Complaint struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Status      Status      `json:"status"`
	Priority    Priority    `json:"priority"`
	RoomNumber  string      `json:"roomNumber"`
	HostelBlock string      `json:"hostelBlock"`
	StudentID   string      `json:"studentId"`
	Resolution  string      `json:"resolution"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Student     *StudentRef `json:"student"`
}

// CreateParams carries a new complaint submission.
type CreateParams struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	StudentID   string   `json:"studentId"`
	RoomNumber  string   `json:"roomNumber"`
	HostelBlock string   `json:"hostelBlock"`
	Priority    Priority `json:"priority"`
}

// Repository is the persistence contract for complaints.
type Repository interface {
	Insert(ctx context.Context, c Complaint) (Complaint, error)
	GetByID(ctx context.Context, id string) (*Complaint, error)
	List(ctx context.Context, studentID string, status Status) ([]Complaint, error)
	Update(ctx context.Context, c Complaint) error
	Delete(ctx context.Context, id string) error
	StudentExists(ctx context.Context, id string) (bool, error)
}

// Service owns the complaint lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func statusRank(s Status) int {
	switch s {
	case StatusOpen:
		return 0
	case StatusInProgress:
		return 1
	case StatusResolved:
		return 2
	}
	return -1
}

// Create files a new complaint with status Open.
func (s *Service) Create(ctx context.Context, p CreateParams) (Complaint, error) {
	if p.Title == "" || p.Description == "" || p.Category == "" ||
		p.StudentID == "" || p.RoomNumber == "" || p.HostelBlock == "" {
		return Complaint{}, apperr.Validation("title, description, category, studentId, roomNumber and hostelBlock are required")
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if p.Priority != PriorityLow && p.Priority != PriorityMedium && p.Priority != PriorityHigh {
		return Complaint{}, apperr.Validation("priority must be Low, Medium or High")
	}
	exists, err := s.repo.StudentExists(ctx, p.StudentID)
	if err != nil {
		return Complaint{}, err
	}
	if !exists {
		return Complaint{}, apperr.NotFound("allottee not found")
	}

	now := s.now().UTC()
	return s.repo.Insert(ctx, Complaint{
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Status:      StatusOpen,
		Priority:    p.Priority,
		RoomNumber:  p.RoomNumber,
		HostelBlock: p.HostelBlock,
		StudentID:   p.StudentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Get returns a single complaint.
func (s *Service) Get(ctx context.Context, id string) (Complaint, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Complaint{}, err
	}
	if c == nil {
		return Complaint{}, apperr.NotFound("complaint not found")
	}
	return *c, nil
}

// List returns complaints, optionally filtered by student and status.
func (s *Service) List(ctx context.Context, studentID string, status Status) ([]Complaint, error) {
	if status != "" && statusRank(status) < 0 {
		return nil, apperr.Validation("unknown status %q", status)
	}
	return s.repo.List(ctx, studentID, status)
}

// Update moves a complaint forward in its lifecycle. Resolving requires
// non-empty resolution text; resolution text is rejected for any other
// status; backward transitions are rejected.
func (s *Service) Update(ctx context.Context, id string, status Status, resolution string) (Complaint, error) {
	if statusRank(status) < 0 {
		return Complaint{}, apperr.Validation("status must be Open, In Progress or Resolved")
	}
	if status == StatusResolved && resolution == "" {
		return Complaint{}, apperr.Validation("resolution text is required to resolve a complaint")
	}
	if status != StatusResolved && resolution != "" {
		return Complaint{}, apperr.Validation("resolution text is only allowed when resolving")
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Complaint{}, err
	}
	if c == nil {
		return Complaint{}, apperr.NotFound("complaint not found")
	}
	if statusRank(status) < statusRank(c.Status) {
		return Complaint{}, apperr.Validation("cannot move complaint from %s back to %s", c.Status, status)
	}

	c.Status = status
	c.Resolution = resolution
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, *c); err != nil {
		return Complaint{}, err
	}
	return *c, nil
}

// Delete removes a complaint.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return apperr.NotFound("complaint not found")
	}
	return s.repo.Delete(ctx, id)
}
