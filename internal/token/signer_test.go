package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()

	signer, err := NewSigner(Options{Secret: "unit-test-secret"})
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	signer.now = func() time.Time { return now }
	return signer
}

func TestNewSignerRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewSigner(Options{})
	if !errors.Is(err, ErrSigningKeyMissing) {
		t.Fatalf("NewSigner() error = %v, want ErrSigningKeyMissing", err)
	}
}

func TestNewSignerInsecureDefaultIsFlagged(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.WarnLevel)
	signer, err := NewSigner(Options{AllowInsecureDefault: true, Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	if string(signer.secret) != insecureDefaultSecret {
		t.Fatal("expected the test default secret")
	}
	if recorded.FilterMessageSnippet("DEPLOYMENT RISK").Len() != 1 {
		t.Fatal("expected a deployment risk warning")
	}
}

func TestMintVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	signer := newTestSigner(t, now)
	id := uuid.NewString()

	tok, err := signer.Mint(id)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token %q is not url safe", tok)
	}

	got, err := signer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != id {
		t.Fatalf("Verify() = %s, want %s", got, id)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	signer := newTestSigner(t, now)

	tok, err := signer.Mint(uuid.NewString())
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	signer.now = func() time.Time { return now.Add(DefaultTTL) }
	if _, err := signer.Verify(tok); err != nil {
		t.Fatalf("Verify() at expiry error = %v, want valid", err)
	}

	signer.now = func() time.Time { return now.Add(DefaultTTL + time.Second) }
	_, err = signer.Verify(tok)
	if !errors.Is(err, ErrExpiredToken) || !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, time.Unix(1_700_000_000, 0))
	encode := func(raw string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(raw))
	}

	testCases := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%"},
		{name: "two parts", token: encode(uuid.NewString() + "|1700000600")},
		{name: "four parts", token: encode(uuid.NewString() + "|1700000600|aa|bb")},
		{name: "id not a uuid", token: encode("42|1700000600|" + strings.Repeat("a", 64))},
		{name: "expiry not numeric", token: encode(uuid.NewString() + "|soon|" + strings.Repeat("a", 64))},
		{name: "signature from other secret", token: encode(uuid.NewString() + "|1700000600|" + strings.Repeat("a", 64))},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := signer.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestVerifyRejectsTokenFromOtherSecret(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	signer := newTestSigner(t, now)
	other, err := NewSigner(Options{Secret: "another-secret"})
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	other.now = signer.now

	tok, err := other.Mint(uuid.NewString())
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := signer.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	signer := newTestSigner(t, time.Unix(1_700_000_000, 0))

	properties.Property("verify(mint(id)) returns id", prop.ForAll(
		func(seed string) bool {
			id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
			tok, err := signer.Mint(id)
			if err != nil {
				return false
			}
			got, err := signer.Verify(tok)
			return err == nil && got == id
		},
		gen.AnyString(),
	))

	properties.Property("a flipped signature byte always rejects", prop.ForAll(
		func(seed string, index int) bool {
			id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
			tok, err := signer.Mint(id)
			if err != nil {
				return false
			}
			raw, err := base64.RawURLEncoding.DecodeString(tok)
			if err != nil {
				return false
			}

			parts := strings.Split(string(raw), separator)
			sig := []byte(parts[2])
			if sig[index] == '0' {
				sig[index] = '1'
			} else {
				sig[index] = '0'
			}
			parts[2] = string(sig)
			tampered := base64.RawURLEncoding.EncodeToString([]byte(strings.Join(parts, separator)))

			_, err = signer.Verify(tampered)
			return errors.Is(err, ErrInvalidToken)
		},
		gen.AnyString(),
		gen.IntRange(0, 63),
	))

	properties.TestingRun(t)
}
