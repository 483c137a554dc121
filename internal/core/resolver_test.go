package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "healthbot/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_CreatesUserOnFirstContact(t *testing.T) {
	store := newFakeStore()
	resolver := NewIdentityResolver(store, "en", testLogger())

	u, err := resolver.Resolve(context.Background(), "+1555")
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, "+1555", u.PhoneNumber)
	assert.Equal(t, "en", u.PreferredLanguage)
	assert.True(t, u.NotificationsEnabled)
	assert.True(t, u.Active)
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, 1, store.userCount())
}

func TestResolve_ReturnsExistingAndTouches(t *testing.T) {
	store := newFakeStore()
	seeded := store.addUser("+1555")
	resolver := NewIdentityResolver(store, "en", testLogger())

	u, err := resolver.Resolve(context.Background(), "+1555")
	require.NoError(t, err)

	assert.Equal(t, seeded.ID, u.ID)
	assert.Equal(t, 1, store.userCount())
	assert.Equal(t, 1, store.touches[seeded.ID])
}

func TestResolve_RejectsEmptyContact(t *testing.T) {
	resolver := NewIdentityResolver(newFakeStore(), "en", testLogger())

	for _, contact := range []string{"", "   "} {
		_, err := resolver.Resolve(context.Background(), contact)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrEmptyContact))
	}
}

func TestResolve_AbsorbsCreationRace(t *testing.T) {
	store := newFakeStore()
	var winnerID uuid.UUID
	// A concurrent resolution registers the contact between our miss and
	// our insert; the insert then hits the uniqueness constraint.
	store.beforeCreateUser = func(s *fakeStore) {
		winnerID = s.addUser("+1555").ID
	}
	resolver := NewIdentityResolver(store, "en", testLogger())

	u, err := resolver.Resolve(context.Background(), "+1555")
	require.NoError(t, err, "creation races must be absorbed, not surfaced")

	assert.Equal(t, winnerID, u.ID)
	assert.Equal(t, 1, store.userCount())
	assert.Equal(t, 1, store.touches[winnerID])
}

func TestResolve_ConcurrentFirstContact(t *testing.T) {
	store := newFakeStore()
	resolver := NewIdentityResolver(store, "en", testLogger())

	const n = 16
	ids := make([]uuid.UUID, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := resolver.Resolve(context.Background(), "+1555")
			if err == nil {
				ids[i] = u.ID
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, store.userCount(), "exactly one user row per contact")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every resolution must return the same user")
	}
}

func TestResolve_StorageUnavailable(t *testing.T) {
	store := newFakeStore()
	store.getUserErr = apperrors.ErrStorageUnavailable(errors.New("connection refused"))
	resolver := NewIdentityResolver(store, "en", testLogger())

	_, err := resolver.Resolve(context.Background(), "+1555")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(err))
}
