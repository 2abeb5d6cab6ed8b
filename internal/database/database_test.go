package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	db, err := Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var timeout int
	require.NoError(t, db.Get(&timeout, `PRAGMA busy_timeout`))
	assert.Equal(t, 5000, timeout)
}

func TestConnectBadPath(t *testing.T) {
	_, err := Connect("/no/such/directory/wardstock.db")
	assert.Error(t, err)
}
