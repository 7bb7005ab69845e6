package crypto

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHMACRoundTrip(t *testing.T) {
	auth := &HMACAuth{Key: "admin-key", Secret: "hunter2"}
	now := time.Unix(1_700_000_000, 0)

	hdrs := auth.HeadersAt("POST", "/api/admin/pause", "", now.Unix())
	require.Equal(t, "admin-key", hdrs["X-Amm-Api-Key"])
	require.Equal(t, strconv.FormatInt(now.Unix(), 10), hdrs["X-Amm-Timestamp"])

	ok := auth.Verify("POST", "/api/admin/pause", "",
		hdrs["X-Amm-Timestamp"], hdrs["X-Amm-Signature"], now)
	require.True(t, ok)
}

func TestHMACRejectsTampering(t *testing.T) {
	auth := &HMACAuth{Key: "admin-key", Secret: "hunter2"}
	now := time.Unix(1_700_000_000, 0)
	hdrs := auth.HeadersAt("POST", "/api/admin/pause", `{"a":1}`, now.Unix())

	// Different body.
	require.False(t, auth.Verify("POST", "/api/admin/pause", `{"a":2}`,
		hdrs["X-Amm-Timestamp"], hdrs["X-Amm-Signature"], now))

	// Different path.
	require.False(t, auth.Verify("POST", "/api/admin/resume", `{"a":1}`,
		hdrs["X-Amm-Timestamp"], hdrs["X-Amm-Signature"], now))

	// Wrong secret.
	other := &HMACAuth{Key: "admin-key", Secret: "different"}
	require.False(t, other.Verify("POST", "/api/admin/pause", `{"a":1}`,
		hdrs["X-Amm-Timestamp"], hdrs["X-Amm-Signature"], now))
}

func TestHMACRejectsStaleTimestamp(t *testing.T) {
	auth := &HMACAuth{Key: "admin-key", Secret: "hunter2"}
	signed := time.Unix(1_700_000_000, 0)
	hdrs := auth.HeadersAt("GET", "/api/admin/status", "", signed.Unix())

	verify := func(at time.Time) bool {
		return auth.Verify("GET", "/api/admin/status", "",
			hdrs["X-Amm-Timestamp"], hdrs["X-Amm-Signature"], at)
	}
	require.True(t, verify(signed.Add(maxTimestampSkew)))
	require.False(t, verify(signed.Add(maxTimestampSkew+time.Second)))
	require.False(t, verify(signed.Add(-maxTimestampSkew-time.Second)))

	require.False(t, auth.Verify("GET", "/api/admin/status", "",
		"not-a-number", hdrs["X-Amm-Signature"], signed))
}

func TestKeyEncryptionRoundTrip(t *testing.T) {
	const key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	path := t.TempDir() + "/wallet.json"

	blob, err := EncryptKey(key, "correct horse")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestLoadKeyRaw(t *testing.T) {
	const key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + key})
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "zzzz"})
	require.Error(t, err)
}
