package tokens

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/authshield/jwt"
)

// RecordVersion is the schema version written into new metadata records.
const RecordVersion = 1

// Record is the metadata kept for one issued token.
type Record struct {
	Version   int           `json:"v"`
	JTI       string        `json:"jti"`
	UserID    string        `json:"userId"`
	Type      jwt.TokenType `json:"type"`
	IssuedAt  time.Time     `json:"issuedAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

func encodeRecord(r Record) (string, error) {
	r.Version = RecordVersion
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRecord(raw string) (Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if r.Version < 1 || r.Version > RecordVersion {
		return Record{}, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptRecord, r.Version)
	}
	if r.JTI == "" || r.UserID == "" {
		return Record{}, fmt.Errorf("%w: missing identifiers", ErrCorruptRecord)
	}
	return r, nil
}
