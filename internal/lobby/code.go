package lobby

import (
	"crypto/rand"
	"math/big"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	// maxCodeAttempts bounds the collision-retry loop; past this the create
	// fails with ErrCodeSpaceExhausted instead of spinning.
	maxCodeAttempts = 10
)

// randomCode returns a fresh 8-char alphanumeric lobby code. Uniqueness is
// checked against the lobbies table by the caller, not here.
func randomCode() string {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
