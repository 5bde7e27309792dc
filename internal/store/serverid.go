package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// LoadServerID derives the reboot-persistent server identifier from a
// host-stable secret file (typically /etc/machine-id). The raw secret is
// never used directly: hashing keeps it out of the database in case the
// machine id is reused elsewhere. The id must never be sent to clients.
func LoadServerID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading machine id secret %s: %w", path, err)
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", fmt.Errorf("machine id secret %s is empty", path)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
