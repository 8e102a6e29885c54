package repo

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParams(t *testing.T) {
	data, err := encodeParams(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))

	data, err = encodeParams(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS workflows")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS job_executions")
}

func TestScanErr(t *testing.T) {
	assert.ErrorIs(t, scanErr("workflow", pgx.ErrNoRows), ErrNotFound)

	cause := errors.New("conn reset")
	err := scanErr("execution", cause)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "scan execution: conn reset")
}

func TestRequireRows(t *testing.T) {
	assert.ErrorIs(t, requireRows(pgconn.NewCommandTag("INSERT 0 0"), ErrAlreadyExists), ErrAlreadyExists)
	assert.ErrorIs(t, requireRows(pgconn.NewCommandTag("UPDATE 0"), ErrInvalidState), ErrInvalidState)
	assert.NoError(t, requireRows(pgconn.NewCommandTag("UPDATE 1"), ErrNotFound))
}
