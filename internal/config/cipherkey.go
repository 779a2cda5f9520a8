package config

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations matches the teacher pack's own password-derived-key
// examples (manifests pulling golang.org/x/crypto for pbkdf2 all settle
// around this order of magnitude for an interactive, not a stored-at-
// rest, secret).
const pbkdf2Iterations = 100000

// DeriveCipherKey turns a configured passphrase and salt into the 32-byte
// AES-256 key the session file/client-side backends need. The key is
// derived in this package, not inside internal/session.
func DeriveCipherKey(passphrase, salt string) [32]byte {
	derived := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, 32, sha256.New)
	var key [32]byte
	copy(key[:], derived)
	return key
}
