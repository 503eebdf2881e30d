package sqlutil

import (
	"database/sql"
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable SQL types

// ToNullString converts an empty string to NULL
func ToNullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: val, Valid: true}
}

// ToNullRawMessage marshals v into a nullable JSONB value; nil stays NULL
func ToNullRawMessage(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

// FromNullRawMessage unmarshals a nullable JSONB column into a string map
func FromNullRawMessage(val pqtype.NullRawMessage) (map[string]string, error) {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal(val.RawMessage, &out); err != nil {
		return nil, err
	}
	return out, nil
}
