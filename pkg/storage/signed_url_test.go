package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	token, expiresAt, err := signer.Generate("unit-1", "reports/unit-1-schedule.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	resourceID, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "unit-1", resourceID)
	assert.Equal(t, "reports/unit-1-schedule.pdf", path)
	assert.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Millisecond*10)

	token, _, err := signer.Generate("unit-1", "reports/unit-1-schedule.pdf")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	// Cleanup paths still resolve after expiry.
	resourceID, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "unit-1", resourceID)
	assert.Equal(t, "reports/unit-1-schedule.pdf", path)
}

func TestSignedURLTamperedPayload(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	token, _, err := signer.Generate("unit-1", "reports/unit-1-schedule.pdf")
	require.NoError(t, err)

	encoded, signature, ok := strings.Cut(token, ".")
	require.True(t, ok)
	_, _, _, err = signer.Parse("x"+encoded+"."+signature, false)
	assert.Error(t, err)
}

func TestSignedURLForeignSecret(t *testing.T) {
	token, _, err := NewSignedURLSigner("one-secret", time.Hour).
		Generate("unit-1", "reports/unit-1-schedule.pdf")
	require.NoError(t, err)

	_, _, _, err = NewSignedURLSigner("another-secret", time.Hour).Parse(token, false)
	assert.Error(t, err)
}
