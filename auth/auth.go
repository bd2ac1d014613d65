// Package auth implements the challenge/response encodings for the SMTP
// AUTH mechanisms this client supports: PLAIN, LOGIN and XOAUTH2. Every
// function here is pure: it takes credentials and returns the base64 text
// to send, performing no I/O and holding no state across calls.
package auth

import (
	"encoding/base64"
	"fmt"

	"github.com/mohau-r/emailjs-smtp-client/smtperr"
)

// Plain returns the base64 response for "AUTH PLAIN": a NUL-separated
// authzid/user/pass triple with an empty authorization identity.
func Plain(user, pass string) string {
	raw := "\x00" + user + "\x00" + pass
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// LoginStep1 is the literal command that starts a LOGIN exchange.
func LoginStep1() string {
	return "AUTH LOGIN"
}

// LoginStep2 returns the base64-encoded username sent in response to the
// server's "Username:" challenge.
func LoginStep2(user string) string {
	return base64.StdEncoding.EncodeToString([]byte(user))
}

// LoginStep3 returns the base64-encoded password sent in response to the
// server's "Password:" challenge.
func LoginStep3(pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(pass))
}

// XOAuth2 returns the base64 response for "AUTH XOAUTH2" carrying an OAuth
// 2.0 bearer token per RFC 7628.
func XOAuth2(user, token string) string {
	raw := "user=" + user + "\x01auth=Bearer " + token + "\x01\x01"
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeChallenge decodes a server's base64 challenge body, returning a
// protocol error (rather than the raw base64 error) on malformed input so
// callers can surface it through OnError uniformly.
func DecodeChallenge(b64 string) ([]byte, error) {
	dec, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, smtperr.Protocol(fmt.Sprintf("invalid base64 auth challenge: %v", err), 334)
	}
	return dec, nil
}

// ExpectLoginChallenge validates that a decoded LOGIN challenge matches the
// literal text the server is required to send at this step ("Username:" or
// "Password:"). The comparison is case-sensitive, matching the source
// implementation this client is ported from; some servers send variant
// challenge text and would fail this check (see DESIGN.md).
func ExpectLoginChallenge(decoded []byte, want string) error {
	if string(decoded) != want {
		return smtperr.Protocol(fmt.Sprintf("unexpected LOGIN challenge %q, want %q", decoded, want), 334)
	}
	return nil
}
