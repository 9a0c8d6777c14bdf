package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(config.SessionConfig{
		File:   filepath.Join(t.TempDir(), "nested", "session.yaml"),
		MaxAge: 15 * 24 * time.Hour,
	})
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token := signedToken(t, now.Add(30*24*time.Hour))
	rec, err := s.Save(token, model.User{ID: "u1", Name: "Alice"})
	require.NoError(t, err)

	assert.Equal(t, "token", rec.Token.Name)
	assert.Equal(t, "/", rec.Token.Path)
	assert.False(t, rec.Token.Secure)
	assert.True(t, now.Add(15*24*time.Hour).Equal(rec.Token.Expires))

	info, err := os.Stat(s.cfg.File)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, token, loaded.Token.Value)
	assert.Equal(t, "Alice", loaded.User.Name)
}

func TestStore_Load_NotLoggedIn(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load()
	assert.True(t, imErrors.Is(err, imErrors.ErrNotLoggedIn))
}

func TestStore_Load_CookieExpired(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Save("opaque-token", model.User{ID: "u1"})
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(16 * 24 * time.Hour) }
	_, err = s.Load()
	assert.True(t, imErrors.Is(err, imErrors.ErrTokenExpired))

	// 过期后文件被删除
	_, err = s.Load()
	assert.True(t, imErrors.Is(err, imErrors.ErrNotLoggedIn))
}

func TestStore_Load_JWTExpired(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Save(signedToken(t, now.Add(time.Hour)), model.User{ID: "u1"})
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = s.Load()
	assert.True(t, imErrors.Is(err, imErrors.ErrTokenExpired))
}

func TestStore_Save_EmptyToken(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save("", model.User{})
	assert.True(t, imErrors.Is(err, imErrors.ErrTokenInvalid))
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save("opaque-token", model.User{ID: "u1"})
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	_, err = s.Load()
	assert.True(t, imErrors.Is(err, imErrors.ErrNotLoggedIn))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := TokenExpiry(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}
