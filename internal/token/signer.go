// Package token mints and verifies the time-boxed tokens embedded in signed pull URLs.
//
// A token is the URL-safe base64 encoding of "exportRecordID|expiryUnix|hexHMAC", where the HMAC
// is computed over "exportRecordID|expiryUnix" with a process-wide secret.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL is how long a minted token stays valid.
const DefaultTTL = 10 * time.Minute

const (
	separator = "|"
	// insecureDefaultSecret is only accepted when the caller explicitly opts in for tests.
	insecureDefaultSecret = "insecure-test-signing-secret"
)

var (
	ErrSigningKeyMissing = errors.New("transfer signing secret is not configured")
	ErrInvalidToken      = errors.New("invalid transfer token")
	ErrExpiredToken      = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Options configures a Signer.
type Options struct {
	Secret string
	TTL    time.Duration
	// AllowInsecureDefault permits a fixed well-known secret when Secret is empty.
	// Only non-production test contexts may set it.
	AllowInsecureDefault bool
	Logger               *zap.Logger
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(opts Options) (*Signer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	secret := strings.TrimSpace(opts.Secret)
	if secret == "" {
		if !opts.AllowInsecureDefault {
			return nil, ErrSigningKeyMissing
		}
		logger.Warn("DEPLOYMENT RISK: transfer tokens are signed with the built-in test secret; set TRANSFER_SIGNING_SECRET")
		secret = insecureDefaultSecret
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Mint returns a token resolving back to exportRecordID until now+TTL.
func (s *Signer) Mint(exportRecordID string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrSigningKeyMissing
	}
	if _, err := uuid.Parse(exportRecordID); err != nil {
		return "", fmt.Errorf("%w: export record id must be a uuid", ErrInvalidToken)
	}

	expiry := strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	signature := s.sign(exportRecordID, expiry)
	raw := strings.Join([]string{exportRecordID, expiry, signature}, separator)

	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// Verify returns the export record id carried by a valid, unexpired token.
func (s *Signer) Verify(token string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrSigningKeyMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(token), "="))
	if err != nil {
		return "", fmt.Errorf("%w: undecodable", ErrInvalidToken)
	}

	parts := strings.Split(string(decoded), separator)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed", ErrInvalidToken)
	}

	exportRecordID, expiry, signature := parts[0], parts[1], parts[2]
	if _, err := uuid.Parse(exportRecordID); err != nil {
		return "", fmt.Errorf("%w: malformed id", ErrInvalidToken)
	}
	expiresAt, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed expiry", ErrInvalidToken)
	}

	expected := s.sign(exportRecordID, expiry)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}
	if s.now().Unix() > expiresAt {
		return "", ErrExpiredToken
	}

	return exportRecordID, nil
}

func (s *Signer) sign(exportRecordID, expiry string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(exportRecordID + separator + expiry))
	return hex.EncodeToString(mac.Sum(nil))
}
