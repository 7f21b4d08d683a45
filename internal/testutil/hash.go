package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// ExpectedFileID recomputes a file record ID independently of
// dvs.Fingerprint: hex SHA-256 over directory, name, size and modification
// time in Unix milliseconds, NUL separated.
func ExpectedFileID(dir, name string, size int64, modTime time.Time) string {
	key := dir + "\x00" + name + "\x00" + strconv.FormatInt(size, 10) + "\x00" +
		strconv.FormatInt(modTime.UTC().UnixMilli(), 10)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
