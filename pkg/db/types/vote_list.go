package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// Vote is a single ballot recorded on a withdrawal or refund request.
type Vote struct {
	UserID  uuid.UUID       `json:"user_id"`
	Vote    enums.VoteValue `json:"vote"`
	VotedAt time.Time       `json:"voted_at"`
}

// VoteList persists a request's ballots as a jsonb array.
type VoteList []Vote

// Has reports whether userID already voted.
func (l VoteList) Has(userID uuid.UUID) bool {
	for _, v := range l {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

func (l *VoteList) Scan(src any) error {
	if src == nil {
		*l = VoteList{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("VoteList: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*l = VoteList{}
		return nil
	}

	var out []Vote
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("VoteList: decode: %w", err)
	}
	if out == nil {
		out = []Vote{}
	}
	*l = VoteList(out)
	return nil
}

// Value encodes the ballots as a JSON string so both the pgx simple protocol
// and sqlite accept it.
func (l VoteList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal([]Vote(l))
	if err != nil {
		return nil, fmt.Errorf("VoteList: encode: %w", err)
	}
	return string(raw), nil
}
