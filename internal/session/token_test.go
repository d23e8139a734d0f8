package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestService(t *testing.T) (*TokenService, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc, err := NewTokenService(Config{Secret: testSecret, Now: clock.Now})
	require.NoError(t, err)
	return svc, clock
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc, clock := newTestService(t)

	token, issued, err := svc.Issue("admin@example.com", "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(token, "."))

	principal, err := svc.Verify(token, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", principal.Identity)
	require.Equal(t, VariantSigned, principal.Variant)
	require.Equal(t, issued.TokenID, principal.TokenID)
	require.NotEmpty(t, principal.TokenID)
	require.Equal(t, "203.0.113.7", principal.BoundIP)
	require.Equal(t, clock.now.Add(time.Hour).Unix(), principal.ExpiresAt.Unix())
}

func TestTokenService_IPMismatchStillValid(t *testing.T) {
	svc, _ := newTestService(t)

	token, _, err := svc.Issue("admin@example.com", "203.0.113.7")
	require.NoError(t, err)

	principal, err := svc.Verify(token, "198.51.100.1")
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", principal.Identity)
}

func TestTokenService_Expiry(t *testing.T) {
	svc, clock := newTestService(t)

	token, _, err := svc.Issue("admin@example.com", "")
	require.NoError(t, err)

	clock.now = clock.now.Add(59 * time.Minute)
	_, err = svc.Verify(token, "")
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Minute)
	_, err = svc.Verify(token, "")
	require.ErrorIs(t, err, ErrInvalidSession)

	clock.now = clock.now.Add(24 * time.Hour)
	_, err = svc.Verify(token, "")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestTokenService_TamperedCharacters(t *testing.T) {
	svc, _ := newTestService(t)

	token, _, err := svc.Issue("admin@example.com", "203.0.113.7")
	require.NoError(t, err)

	for i := range token {
		if token[i] == '.' {
			continue
		}
		replacement := byte('A')
		if token[i] == 'A' {
			replacement = 'B'
		}
		tampered := token[:i] + string(replacement) + token[i+1:]
		_, err := svc.Verify(tampered, "")
		require.ErrorIs(t, err, ErrInvalidSession, "position %d", i)
	}
}

func TestTokenService_TamperedBytes(t *testing.T) {
	svc, _ := newTestService(t)

	token, _, err := svc.Issue("admin@example.com", "")
	require.NoError(t, err)
	payloadPart, sigPart, _ := strings.Cut(token, ".")
	data, err := encoding.DecodeString(payloadPart)
	require.NoError(t, err)
	sig, err := encoding.DecodeString(sigPart)
	require.NoError(t, err)

	for i := range data {
		flipped := append([]byte(nil), data...)
		flipped[i] ^= 0x01
		_, err := svc.Verify(encoding.EncodeToString(flipped)+"."+sigPart, "")
		require.ErrorIs(t, err, ErrInvalidSession, "payload byte %d", i)
	}
	for i := range sig {
		flipped := append([]byte(nil), sig...)
		flipped[i] ^= 0x80
		_, err := svc.Verify(payloadPart+"."+encoding.EncodeToString(flipped), "")
		require.ErrorIs(t, err, ErrInvalidSession, "signature byte %d", i)
	}
}

func TestTokenService_ForeignSecret(t *testing.T) {
	svc, clock := newTestService(t)
	other, err := NewTokenService(Config{Secret: strings.Repeat("x", 32), Now: clock.Now})
	require.NoError(t, err)

	token, _, err := other.Issue("admin@example.com", "")
	require.NoError(t, err)
	_, err = svc.Verify(token, "")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestTokenService_ForgedPayloadWithValidSignatureShape(t *testing.T) {
	svc, _ := newTestService(t)

	forged := encoding.EncodeToString([]byte(`{"id":"x","sub":"root@example.com","iat":0,"exp":99999999999}`))
	token, _, err := svc.Issue("admin@example.com", "")
	require.NoError(t, err)
	_, sigPart, _ := strings.Cut(token, ".")

	_, err = svc.Verify(forged+"."+sigPart, "")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestTokenService_MalformedTokens(t *testing.T) {
	svc, _ := newTestService(t)
	valid, _, err := svc.Issue("admin@example.com", "")
	require.NoError(t, err)

	malformed := []string{
		"",
		".",
		"abc",
		"abc.",
		".abc",
		"a.b.c",
		valid + ".extra",
		"!!!!.????",
		strings.Replace(valid, ".", "", 1),
		"1",
	}
	for _, token := range malformed {
		require.NotPanics(t, func() {
			_, err := svc.Verify(token, "")
			require.ErrorIs(t, err, ErrInvalidSession, "token %q", token)
		})
	}
}

func TestTokenService_SignedNonJSONPayload(t *testing.T) {
	svc, _ := newTestService(t)
	data := []byte("not json")
	token := encoding.EncodeToString(data) + "." + encoding.EncodeToString(svc.sign(data))

	_, err := svc.Verify(token, "")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestTokenService_Validation(t *testing.T) {
	_, err := NewTokenService(Config{})
	require.ErrorIs(t, err, ErrEmptySecret)

	svc, _ := newTestService(t)
	_, _, err = svc.Issue("", "")
	require.ErrorIs(t, err, ErrEmptyIdentity)
	require.Equal(t, time.Hour, svc.MaxAge())
}

func TestLegacyVerifier(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := &LegacyVerifier{
		Enabled:  true,
		Identity: "owner@example.com",
		Until:    now.Add(24 * time.Hour),
		Now:      func() time.Time { return now },
	}

	principal, err := v.Verify("1", "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, "owner@example.com", principal.Identity)
	require.Equal(t, VariantLegacy, principal.Variant)
	require.Empty(t, principal.TokenID)

	for _, value := range []string{"", "0", "true", "11"} {
		_, err := v.Verify(value, "")
		require.ErrorIs(t, err, ErrInvalidSession, "value %q", value)
	}
}

func TestLegacyVerifier_Inactive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	cases := map[string]*LegacyVerifier{
		"nil":         nil,
		"disabled":    {Enabled: false, Identity: "owner@example.com", Now: clock},
		"no identity": {Enabled: true, Now: clock},
		"past until":  {Enabled: true, Identity: "owner@example.com", Until: now, Now: clock},
		"no deadline": {Enabled: true, Identity: "owner@example.com", Now: clock},
	}
	for name, v := range cases {
		_, err := v.Verify("1", "")
		require.ErrorIs(t, err, ErrInvalidSession, name)
	}
}
