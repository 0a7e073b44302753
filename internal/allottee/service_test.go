package allottee

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel/internal/apperr"
)

type fakeAllotteeRepo struct {
	byID      map[string]Allottee
	allocated map[string]bool
	nextID    int
}

func newFakeAllotteeRepo() *fakeAllotteeRepo {
	return &fakeAllotteeRepo{byID: make(map[string]Allottee), allocated: make(map[string]bool)}
}

func (f *fakeAllotteeRepo) Insert(ctx context.Context, a Allottee) (Allottee, error) {
	f.nextID++
	a.ID = fmt.Sprintf("a-%d", f.nextID)
	f.byID[a.ID] = a
	return a, nil
}

func (f *fakeAllotteeRepo) GetByID(ctx context.Context, id string) (*Allottee, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeAllotteeRepo) GetByEmail(ctx context.Context, email string) (*Allottee, error) {
	for _, a := range f.byID {
		if a.Email == email {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeAllotteeRepo) List(ctx context.Context) ([]Allottee, error) {
	var res []Allottee
	for _, a := range f.byID {
		res = append(res, a)
	}
	return res, nil
}

func (f *fakeAllotteeRepo) UpdateProfile(ctx context.Context, id, name, roll string) (*Allottee, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	a.Name, a.Roll = name, roll
	f.byID[id] = a
	return &a, nil
}

func (f *fakeAllotteeRepo) Delete(ctx context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeAllotteeRepo) IsAllocated(ctx context.Context, id string) (bool, error) {
	return f.allocated[id], nil
}

type fakeAdmins struct{ emails map[string]bool }

func (f *fakeAdmins) AdminExists(ctx context.Context, email string) (bool, error) {
	return f.emails[email], nil
}

func newTestService(repo *fakeAllotteeRepo) *Service {
	return NewService(repo, &fakeAdmins{emails: map[string]bool{"warden@hostel.test": true}})
}

func TestRegister(t *testing.T) {
	repo := newFakeAllotteeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Register(ctx, "Alice", "alice@hostel.test", "R-42", "warden@hostel.test")
	require.NoError(t, err)
	assert.Equal(t, "Alice", a.Name)
	assert.Equal(t, "warden@hostel.test", a.RegisteredBy)
	assert.False(t, a.Assigned(), "fresh registrations are unassigned")

	// Missing email
	_, err = svc.Register(ctx, "Bob", "", "", "warden@hostel.test")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Unknown admin
	_, err = svc.Register(ctx, "Bob", "bob@hostel.test", "", "intruder@hostel.test")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// Duplicate email
	_, err = svc.Register(ctx, "Alice II", "alice@hostel.test", "", "warden@hostel.test")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRegisterDefaultName(t *testing.T) {
	repo := newFakeAllotteeRepo()
	svc := newTestService(repo)

	a, err := svc.Register(context.Background(), "", "anon@hostel.test", "", "warden@hostel.test")
	require.NoError(t, err)
	assert.Equal(t, "New Allotee", a.Name)
}

func TestUpdateProfile(t *testing.T) {
	repo := newFakeAllotteeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Register(ctx, "Alice", "alice@hostel.test", "R-42", "warden@hostel.test")
	require.NoError(t, err)

	updated, err := svc.Update(ctx, a.ID, "Alice Cooper", "R-43")
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)
	assert.Equal(t, "R-43", updated.Roll)

	_, err = svc.Update(ctx, "nope", "x", "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Update(ctx, a.ID, "", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDeleteGuardsAllocation(t *testing.T) {
	repo := newFakeAllotteeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Register(ctx, "Alice", "alice@hostel.test", "", "warden@hostel.test")
	require.NoError(t, err)

	repo.allocated[a.ID] = true
	err = svc.Delete(ctx, a.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	repo.allocated[a.ID] = false
	require.NoError(t, svc.Delete(ctx, a.ID))

	err = svc.Delete(ctx, a.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
