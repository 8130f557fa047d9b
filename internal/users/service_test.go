package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/cache"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/identity"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
)

var testClock = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *identity.TokenService) {
	t.Helper()
	tokens := identity.NewTokenService("jwt-test-secret", time.Hour, cache.NewMemory())
	s := NewService(memstore.New(), tokens)
	s.now = func() time.Time { return testClock }
	return s, tokens
}

func validRegister() RegisterInput {
	return RegisterInput{Name: "Runner", Phone: "+919876543210", Password: "hunter2hunter2"}
}

func TestRegister(t *testing.T) {
	s, tokens := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, validRegister())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.User.ID)
	assert.Equal(t, core.RoleUser, sess.User.Role)
	assert.Equal(t, testClock, sess.User.CreatedAt)
	assert.NotEqual(t, "hunter2hunter2", sess.User.PasswordHash)

	// The session token authenticates as the new user.
	actor, err := tokens.Verify(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, actor.UserID)
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	in := validRegister()
	in.Name = ""
	_, err := s.Register(ctx, in)
	require.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
	assert.Contains(t, apperrors.As(err).FieldErrors, "name")

	in = validRegister()
	in.Phone = "9876543210" // missing +country
	_, err = s.Register(ctx, in)
	assert.Contains(t, apperrors.As(err).FieldErrors, "phone")

	in = validRegister()
	in.Password = "short"
	_, err = s.Register(ctx, in)
	assert.Contains(t, apperrors.As(err).FieldErrors, "password")
}

func TestRegisterDuplicatePhone(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, validRegister())
	require.NoError(t, err)

	in := validRegister()
	in.Name = "Someone Else"
	_, err = s.Register(ctx, in)
	require.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
	assert.Contains(t, apperrors.As(err).FieldErrors, "phone")
}

func TestLogin(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, validRegister())
	require.NoError(t, err)

	sess, err := s.Login(ctx, "+919876543210", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sess.User.ID)
	assert.NotEmpty(t, sess.Token)
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, validRegister())
	require.NoError(t, err)

	_, badPass := s.Login(ctx, "+919876543210", "wrong-password")
	_, badPhone := s.Login(ctx, "+919999999999", "hunter2hunter2")

	require.True(t, apperrors.Is(badPass, apperrors.CodeUnauthenticated))
	require.True(t, apperrors.Is(badPhone, apperrors.CodeUnauthenticated))
	assert.Equal(t, apperrors.As(badPass).Message, apperrors.As(badPhone).Message)
}

func TestLogoutRevokesToken(t *testing.T) {
	s, tokens := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, validRegister())
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, sess.Token))
	_, err = tokens.Verify(ctx, sess.Token)
	assert.True(t, apperrors.Is(err, apperrors.CodeTokenRevoked))

	// Logging out garbage is a quiet no-op.
	assert.NoError(t, s.Logout(ctx, "not-a-token"))
}

func TestUpdateProfile(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, validRegister())
	require.NoError(t, err)

	bio := "weekend 10K runner"
	private := true
	u, err := s.UpdateProfile(ctx, sess.User.ID, ProfilePatch{Bio: &bio, IsPrivate: &private})
	require.NoError(t, err)
	assert.Equal(t, "weekend 10K runner", u.Bio)
	assert.True(t, u.IsPrivate)
	assert.Equal(t, "Runner", u.Name)

	empty := ""
	_, err = s.UpdateProfile(ctx, sess.User.ID, ProfilePatch{Name: &empty})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	_, err = s.UpdateProfile(ctx, "missing", ProfilePatch{Bio: &bio})
	assert.True(t, apperrors.Is(err, apperrors.CodeUserNotFound))
}
