package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/crypto/scrypt"
)

// Session JWT scopes. The service scope is for the upstream classifier
// pipeline; it can submit violations but never passes the step-up gate.
const (
	ScopeAccess  = "social.pryde.access"
	ScopeService = "social.pryde.service"
)

const sessionTTL = 24 * time.Hour

func makeToken(subject string, scope string, sessionID string, exp time.Time) jwt.Token {
	tok := jwt.New()
	tok.Set("scope", scope)
	tok.Set("sub", subject)
	tok.Set("sid", sessionID)
	tok.Set("iat", time.Now().Unix())
	tok.Set("exp", exp.Unix())

	return tok
}

// createSessionToken mints the signed session JWT for one login. The session
// ID claim is what escalation tokens later bind to; a token stolen from one
// session never verifies under another.
func (s *Server) createSessionToken(ctx context.Context, accountID uint, scope string) (string, string, error) {
	rval := make([]byte, 16)
	rand.Read(rval)
	sessionID := base64.RawURLEncoding.EncodeToString(rval)

	tok := makeToken(strconv.FormatUint(uint64(accountID), 10), scope, sessionID, time.Now().Add(sessionTTL))

	sig, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.jwtSigningKey))
	if err != nil {
		return "", "", fmt.Errorf("signing session token: %w", err)
	}

	return string(sig), sessionID, nil
}

// password hashing, scrypt with the platform's historical parameters
const (
	cost            = 16384
	blockSize       = 8
	parallelization = 1
	keylen          = 64
)

var ErrInvalidUsernameOrPassword = fmt.Errorf("invalid username or password")

func encodePassword(password string) (string, error) {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}
	salt := hex.EncodeToString(buf)
	dk, err := scrypt.Key([]byte(password), []byte(salt), cost, blockSize, parallelization, keylen)
	if err != nil {
		return "", err
	}
	return salt + ":" + hex.EncodeToString(dk), nil
}

func verifyPassword(storedHash, password string) error {
	parts := strings.Split(storedHash, ":")
	if len(parts) != 2 {
		return ErrInvalidUsernameOrPassword
	}
	salt := parts[0]
	passwordHashed := parts[1]
	dk, err := scrypt.Key([]byte(password), []byte(salt), cost, blockSize, parallelization, keylen)
	if err != nil {
		return err
	}
	dst := make([]byte, hex.EncodedLen(len(dk)))
	hex.Encode(dst, dk)

	if subtle.ConstantTimeCompare([]byte(passwordHashed), dst) != 1 {
		return ErrInvalidUsernameOrPassword
	}
	return nil
}

// SecondFactorVerifier is the external verification primitive for passkey and
// TOTP factors. The gate only ever consumes the boolean result; ceremony
// details live upstream.
type SecondFactorVerifier interface {
	VerifyTOTP(ctx context.Context, accountID uint, code string) (bool, error)
	VerifyPasskey(ctx context.Context, accountID uint, challenge string, assertion string) (bool, error)
}

// DisabledVerifier rejects every passkey and TOTP attempt. Used when no
// verification backend is configured; the password method still works.
type DisabledVerifier struct{}

var _ SecondFactorVerifier = DisabledVerifier{}

func (DisabledVerifier) VerifyTOTP(ctx context.Context, accountID uint, code string) (bool, error) {
	return false, nil
}

func (DisabledVerifier) VerifyPasskey(ctx context.Context, accountID uint, challenge string, assertion string) (bool, error) {
	return false, nil
}
