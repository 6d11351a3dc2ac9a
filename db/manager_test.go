package db

import (
	"testing"

	"socialclient/config"
	"socialclient/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	conf := config.Default()
	conf.Storage.SQLiteDSN = ":memory:"

	orm, err := Open("sqlite", conf)
	require.NoError(t, err)
	assert.True(t, orm.Migrator().HasTable(&models.KVEntry{}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", config.Default())
	assert.Error(t, err)
}

func TestOpenPostgresRequiresMaster(t *testing.T) {
	_, err := Open("postgres", config.Default())
	assert.ErrorContains(t, err, "master database configuration is missing")
}
