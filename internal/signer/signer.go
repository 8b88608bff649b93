// Package signer derives the time-bound query credential the generator
// requires on its streaming endpoint. The signature algorithm (an MD5 hex
// digest of the colon-joined secret pair) is fixed by the generator protocol;
// it is not a security primitive chosen here.
package signer

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Credential is a signed query credential. It lives only in process memory
// for the duration of one job; neither the signature nor the secret key may
// appear in logs, responses, or error messages.
type Credential struct {
	SecretID  string
	Signature string
	IssuedAt  time.Time
}

// FreshWithin reports whether the credential was issued inside the given
// validity window as of now.
func (c Credential) FreshWithin(window time.Duration, now time.Time) bool {
	return now.Sub(c.IssuedAt) <= window
}

// Sign computes the generator credential for the secret pair at the given
// instant. Deterministic, no I/O. Malformed secrets are a configuration
// error caught at startup, not a runtime fault of this function.
func Sign(secretID, secretKey string, issuedAt time.Time) Credential {
	sum := md5.Sum([]byte(secretID + ":" + secretKey))
	return Credential{
		SecretID:  secretID,
		Signature: hex.EncodeToString(sum[:]),
		IssuedAt:  issuedAt,
	}
}
