package address

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/store"
)

type fakeUsers struct {
	mu         sync.Mutex
	users      map[primitive.ObjectID]*models.User
	staleTimes int
	writes     int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[primitive.ObjectID]*models.User{}}
}

func (f *fakeUsers) add() primitive.ObjectID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := primitive.NewObjectID()
	f.users[id] = &models.User{ID: id, Email: "a@b.c", UpdatedAt: time.Unix(1000, 0)}
	return id
}

func (f *fakeUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	cp.Addresses = append([]models.Address(nil), u.Addresses...)
	return &cp, nil
}

func (f *fakeUsers) ReplaceAddresses(_ context.Context, id primitive.ObjectID, readAt time.Time, addrs []models.Address) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return time.Time{}, store.ErrNotFound
	}
	if f.staleTimes > 0 {
		f.staleTimes--
		u.UpdatedAt = u.UpdatedAt.Add(time.Second)
		return time.Time{}, store.ErrStale
	}
	if !u.UpdatedAt.Equal(readAt) {
		return time.Time{}, store.ErrStale
	}
	f.writes++
	u.Addresses = append([]models.Address(nil), addrs...)
	u.UpdatedAt = u.UpdatedAt.Add(time.Second)
	return u.UpdatedAt, nil
}

func validInput() Input {
	return Input{
		FullName:    "Ada Lovelace",
		Street:      "1 Analytical Way",
		City:        "London",
		State:       "LDN",
		PostalCode:  "N1",
		Country:     "UK",
		PhoneNumber: "+44 20 0000",
	}
}

func yes() *bool { v := true; return &v }

func defaults(addrs []models.Address) []string {
	var ids []string
	for _, a := range addrs {
		if a.IsDefault {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func setup(t *testing.T, requireOne bool) (*Service, *fakeUsers, primitive.ObjectID) {
	t.Helper()
	users := newFakeUsers()
	return NewService(users, requireOne, logging.Discard()), users, users.add()
}

func TestAddFirstAddressBecomesDefault(t *testing.T) {
	svc, _, uid := setup(t, true)

	addrs, created, err := svc.Add(context.Background(), uid, validInput())
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.True(t, created.IsDefault)
	assert.Equal(t, models.AddressTypeShipping, created.Type)
	assert.NotEmpty(t, created.ID)
}

func TestAddDefaultMovesFlag(t *testing.T) {
	svc, _, uid := setup(t, true)
	ctx := context.Background()

	_, first, err := svc.Add(ctx, uid, validInput())
	require.NoError(t, err)
	addrs, second, err := svc.Add(ctx, uid, validInput())
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
	assert.Equal(t, []string{first.ID}, defaults(addrs))

	in := validInput()
	in.IsDefault = yes()
	addrs, third, err := svc.Add(ctx, uid, in)
	require.NoError(t, err)
	assert.Len(t, addrs, 3)
	assert.Equal(t, []string{third.ID}, defaults(addrs))
}

func TestAddValidation(t *testing.T) {
	svc, _, uid := setup(t, true)

	in := validInput()
	in.City = "   "
	_, _, err := svc.Add(context.Background(), uid, in)
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	in = validInput()
	in.Type = "office"
	_, _, err = svc.Add(context.Background(), uid, in)
	assert.ErrorIs(t, err, ErrInvalidType)

	in = validInput()
	in.Type = "Both"
	_, created, err := svc.Add(context.Background(), uid, in)
	require.NoError(t, err)
	assert.Equal(t, models.AddressTypeBoth, created.Type)
}

func TestAddUnknownUser(t *testing.T) {
	svc, _, _ := setup(t, true)
	_, _, err := svc.Add(context.Background(), primitive.NewObjectID(), validInput())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateIsPartial(t *testing.T) {
	svc, _, uid := setup(t, true)
	ctx := context.Background()
	_, created, err := svc.Add(ctx, uid, validInput())
	require.NoError(t, err)

	addrs, err := svc.Update(ctx, uid, created.ID, Input{City: "Paris", Type: "billing"})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "Paris", addrs[0].City)
	assert.Equal(t, models.AddressTypeBilling, addrs[0].Type)
	assert.Equal(t, "1 Analytical Way", addrs[0].Street)

	_, err = svc.Update(ctx, uid, "missing", Input{City: "Rome"})
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestUpdateMovesDefault(t *testing.T) {
	svc, _, uid := setup(t, true)
	ctx := context.Background()
	_, first, _ := svc.Add(ctx, uid, validInput())
	_, second, _ := svc.Add(ctx, uid, validInput())

	addrs, err := svc.Update(ctx, uid, second.ID, Input{IsDefault: yes()})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, defaults(addrs))

	no := false
	addrs, err = svc.Update(ctx, uid, second.ID, Input{IsDefault: &no})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, defaults(addrs), "clearing the only default is ignored")
	assert.NotEqual(t, first.ID, defaults(addrs)[0])
}

func TestDeleteDefaultPromotesFirstRemaining(t *testing.T) {
	svc, _, uid := setup(t, true)
	ctx := context.Background()
	_, first, _ := svc.Add(ctx, uid, validInput())
	_, second, _ := svc.Add(ctx, uid, validInput())
	_, third, _ := svc.Add(ctx, uid, validInput())

	addrs, err := svc.Delete(ctx, uid, first.ID)
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, []string{second.ID}, defaults(addrs))
	assert.Equal(t, third.ID, addrs[1].ID)
}

func TestDeleteLastAddressPolicy(t *testing.T) {
	ctx := context.Background()

	svc, _, uid := setup(t, true)
	_, only, _ := svc.Add(ctx, uid, validInput())
	_, err := svc.Delete(ctx, uid, only.ID)
	assert.ErrorIs(t, err, ErrLastAddress)

	svc, _, uid = setup(t, false)
	_, only, _ = svc.Add(ctx, uid, validInput())
	addrs, err := svc.Delete(ctx, uid, only.ID)
	require.NoError(t, err)
	assert.Empty(t, addrs)
	assert.NotNil(t, addrs)
}

func TestGetAndList(t *testing.T) {
	svc, _, uid := setup(t, true)
	ctx := context.Background()

	list, err := svc.List(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, created, _ := svc.Add(ctx, uid, validInput())
	got, err := svc.Get(ctx, uid, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Get(ctx, uid, "nope")
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestStaleWriteIsRetried(t *testing.T) {
	svc, users, uid := setup(t, true)
	users.staleTimes = 2

	addrs, _, err := svc.Add(context.Background(), uid, validInput())
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
	assert.Equal(t, 1, users.writes)
}

func TestPersistentStaleWriteGivesUp(t *testing.T) {
	svc, users, uid := setup(t, true)
	users.staleTimes = writeAttempts

	_, _, err := svc.Add(context.Background(), uid, validInput())
	assert.ErrorIs(t, err, ErrConcurrentEdit)
	assert.Equal(t, http.StatusConflict, apperr.StatusOf(err))
}

func TestConcurrentAddsKeepSingleDefault(t *testing.T) {
	svc, users, uid := setup(t, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = svc.Add(ctx, uid, validInput())
		}()
	}
	wg.Wait()

	u, err := users.FindByID(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, defaults(u.Addresses), 1)
}
