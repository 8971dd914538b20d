package database

import (
	"os"
	"testing"
	"time"

	"marketplace_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}

func TestDatabaseConnectionZeroRetryStillAttempts(t *testing.T) {
	_, err := NewDatabaseConnection(Connection{
		ConnectStr:    "host=127.0.0.1 port=1 user=nobody password=nothing dbname=none sslmode=disable connect_timeout=1",
		RetryCount:    0,
		RetryInterval: time.Millisecond,
	})

	// an unreachable store surfaces as an error, never a silent nil handle
	assert.Error(t, err)
}
