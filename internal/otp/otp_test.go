package otp

import (
	"testing"
	"time"

	"github.com/ageniuscoder/relaychat/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Db.Close() })
	require.NoError(t, db.Migrate("../../sql/schema.sql"))
	return &Service{DB: db.Db, Digits: 6, TTL: 5 * time.Minute}
}

func seedCode(t *testing.T, s *Service, phone, purpose, code, expiry string) {
	t.Helper()
	_, err := s.DB.Exec(
		`INSERT INTO otp_codes (phone_number, code, purpose, expires_at)
         VALUES (?, ?, ?, datetime('now', ?))`,
		phone, code, purpose, expiry)
	require.NoError(t, err)
}

func TestVerifyConsumesCode(t *testing.T) {
	s := newTestService(t)
	seedCode(t, s, "+911111111111", "signup", "123456", "+5 minutes")

	ok, err := s.Verify("+911111111111", "signup", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	// a code verifies exactly once
	ok, err = s.Verify("+911111111111", "signup", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsWrongCodeOrPurpose(t *testing.T) {
	s := newTestService(t)
	seedCode(t, s, "+911111111111", "signup", "123456", "+5 minutes")

	ok, err := s.Verify("+911111111111", "signup", "654321")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Verify("+911111111111", "forgot", "123456")
	require.NoError(t, err)
	assert.False(t, ok)

	// the right code still works after failed attempts
	ok, err = s.Verify("+911111111111", "signup", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyExpiredCode(t *testing.T) {
	s := newTestService(t)
	seedCode(t, s, "+911111111111", "signup", "123456", "-1 minute")

	ok, err := s.Verify("+911111111111", "signup", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRandomDigitsLengthAndCharset(t *testing.T) {
	code, err := randomDigits(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.GreaterOrEqual(t, r, '0')
		assert.LessOrEqual(t, r, '9')
	}
}
