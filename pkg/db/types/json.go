package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a raw jsonb document. It binds as text so the pgx simple protocol
// does not send it as bytea.
type JSON json.RawMessage

func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case string:
		*j = JSON(v)
	case []byte:
		*j = append(JSON(nil), v...)
	default:
		return fmt.Errorf("JSON: unsupported Scan type %T", src)
	}
	return nil
}

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSON: invalid document")
	}
	return string(j), nil
}

// MarshalJSON keeps the document inline when the owning struct is encoded.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of the raw document.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// MustJSON encodes v, returning nil when encoding fails.
func MustJSON(v any) JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return JSON(raw)
}
