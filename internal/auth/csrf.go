package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// FieldCSRF is the form field every state-changing form submits.
const FieldCSRF = "csrf_token"

// ErrCSRF means the anti-forgery token was missing, expired, forged or
// minted for another session.
var ErrCSRF = errors.New("auth: missing or invalid anti-forgery token")

// CSRF binds anti-forgery tokens to a session nonce.
//
// A token is a signed JWT whose subject is the nonce stored in the session
// cookie. A cross-site form cannot read the victim's nonce or forge the
// signature, so it cannot produce a token that Check accepts.
type CSRF struct {
	tokens *TokenService
}

func NewCSRF(tokens *TokenService) *CSRF {
	return &CSRF{tokens: tokens}
}

// Token mints a token for the given session nonce.
func (c *CSRF) Token(nonce string) (string, error) {
	if nonce == "" {
		return "", fmt.Errorf("auth: minting csrf token: empty nonce")
	}
	return c.tokens.Generate(nonce)
}

// Check verifies token against the session's nonce.
func (c *CSRF) Check(token, nonce string) error {
	if token == "" || nonce == "" {
		return ErrCSRF
	}
	subject, err := c.tokens.Validate(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCSRF, err)
	}
	if subtle.ConstantTimeCompare([]byte(subject), []byte(nonce)) != 1 {
		return ErrCSRF
	}
	return nil
}
