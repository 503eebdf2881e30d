package sqlutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullRawMessage(t *testing.T) {
	empty, err := ToNullRawMessage(nil)
	require.NoError(t, err)
	assert.False(t, empty.Valid)

	got, err := FromNullRawMessage(empty)
	require.NoError(t, err)
	assert.Nil(t, got)

	headers := map[string]string{"Nats-Msg-Id": "abc"}
	raw, err := ToNullRawMessage(headers)
	require.NoError(t, err)
	assert.True(t, raw.Valid)

	got, err = FromNullRawMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, headers, got)
}

func TestNullString(t *testing.T) {
	assert.False(t, ToNullString("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, ToNullString("x"))
}
