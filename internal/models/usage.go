package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UsageCounter is one user's consumption for one policy day.
type UsageCounter struct {
	UserEPF   string    `db:"user_epf" json:"userEpf"`
	Day       string    `db:"day" json:"day"`
	Attempts  int       `db:"attempts" json:"attempts"`
	Pages     int       `db:"pages" json:"pages"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// DocumentCopies tracks copies printed per document hash for a day.
type DocumentCopies struct {
	UserEPF  string `db:"user_epf" json:"userEpf"`
	Day      string `db:"day" json:"day"`
	FileHash string `db:"file_hash" json:"fileHash"`
	Copies   int    `db:"copies" json:"copies"`
}

// UsageIncrement describes one successful print to be counted.
type UsageIncrement struct {
	UserEPF     string
	Day         string
	FileHash    string
	Pages       int
	Copies      int
	MaxAttempts int
	// Enforce is false for exempt prints, which are counted but not limited.
	Enforce bool
}

// BlockDetails carries the numbers behind a limit block. Stored as jsonb.
type BlockDetails struct {
	Used      *int `json:"used,omitempty"`
	Limit     *int `json:"limit,omitempty"`
	Requested *int `json:"requested,omitempty"`
	Max       *int `json:"max,omitempty"`
}

// Value implements driver.Valuer.
func (d BlockDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *BlockDetails) Scan(src any) error {
	switch data := src.(type) {
	case nil:
		*d = BlockDetails{}
		return nil
	case []byte:
		return json.Unmarshal(data, d)
	case string:
		return json.Unmarshal([]byte(data), d)
	default:
		return fmt.Errorf("block details: unsupported scan type %T", src)
	}
}
