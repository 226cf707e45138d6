package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectMongoRejectsBadURI(t *testing.T) {
	_, err := ConnectMongo(context.Background(), "not-a-mongo-uri", time.Second)
	require.Error(t, err)
}

func TestConnectMongoWithRetryGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ConnectMongoWithRetry(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50", 200*time.Millisecond, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 attempts")
}
