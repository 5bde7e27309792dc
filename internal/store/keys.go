package store

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// KeyLength is the length of a player key. 62^10 possible keys make
// collisions negligible; a colliding insert is retried once and then
// treated as fatal.
const KeyLength = 10

const keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewPlayerKey generates a 10 character base-62 player key
func NewPlayerKey() (string, error) {
	buf := make([]byte, KeyLength)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating player key: %w", err)
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return string(buf), nil
}
