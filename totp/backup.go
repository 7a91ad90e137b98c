package totp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const (
	backupCodeMin   = 100000
	backupCodeRange = 900000
)

// GenerateBackupCodes returns BackupCodeCount distinct six-digit codes drawn
// uniformly from [100000, 999999].
func (e *Engine) GenerateBackupCodes() ([]string, error) {
	n := e.cfg.BackupCodeCount
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	limit := big.NewInt(backupCodeRange)

	for len(codes) < n {
		v, err := rand.Int(e.random, limit)
		if err != nil {
			return nil, fmt.Errorf("totp: backup code: %w", err)
		}
		code := strconv.FormatInt(v.Int64()+backupCodeMin, 10)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// HashBackupCode binds a code to its owner: hex(sha256(userID \x00 code)).
func HashBackupCode(userID, code string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes every code for userID.
func HashBackupCodes(userID string, codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = HashBackupCode(userID, c)
	}
	return out
}

// MatchBackupCode reports whether code is in hashes and returns the set with
// the matched entry removed. Every entry is compared.
func MatchBackupCode(userID, code string, hashes []string) ([]string, bool) {
	want := []byte(HashBackupCode(userID, code))
	idx := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), want) == 1 && idx < 0 {
			idx = i
		}
	}
	if idx < 0 {
		return hashes, false
	}
	next := make([]string, 0, len(hashes)-1)
	next = append(next, hashes[:idx]...)
	next = append(next, hashes[idx+1:]...)
	return next, true
}
