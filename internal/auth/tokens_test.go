package auth

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagyard/tagyard-server/internal/domain"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, keyLength)
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc, err := NewTokenService(testKey(), time.Hour)
	require.NoError(t, err)

	token, err := svc.Issue(domain.Actor{UserID: "user-mod", Level: domain.LevelModerator})
	require.NoError(t, err)
	assert.Contains(t, token, "v4.local.")

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-mod", claims.UserID)
	assert.Equal(t, domain.LevelModerator, claims.Level)
	assert.Equal(t, "user-mod", claims.Subject)

	actor := claims.Actor("10.0.0.1")
	assert.True(t, actor.IsModerator())
	assert.Equal(t, "10.0.0.1", actor.IP)
}

func TestTokenService_Rejects(t *testing.T) {
	svc, err := NewTokenService(testKey(), time.Hour)
	require.NoError(t, err)

	other, err := NewTokenService(bytes.Repeat([]byte{9}, keyLength), time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(domain.Actor{UserID: "user-1", Level: domain.LevelMember})
	require.NoError(t, err)

	expiredSvc, err := NewTokenService(testKey(), -time.Minute)
	require.NoError(t, err)
	expired, err := expiredSvc.Issue(domain.Actor{UserID: "user-1", Level: domain.LevelMember})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":   "not-a-token",
		"wrong key": foreign,
		"expired":   expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(token)
			assert.Error(t, err)
		})
	}
}

func TestNewTokenService_KeyLength(t *testing.T) {
	_, err := NewTokenService([]byte("short"), time.Hour)
	assert.Error(t, err)
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "auth.key")

	key, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	assert.Len(t, key, keyLength)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))
	_, err = LoadOrGenerateKey(path)
	assert.Error(t, err)
}
