package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisService_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	svc, err := NewRedisService("redis://"+mr.Addr()+"/0", discardLogger())
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.WaitForConnection(ctx))
	require.NoError(t, svc.GetClient().Set(ctx, "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestRedisService_BareAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	svc, err := NewRedisService(mr.Addr(), discardLogger())
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestRedisService_WaitGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	svc, err := NewRedisService(addr, discardLogger())
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	svc.maxRetries = 2
	svc.retryDelay = time.Millisecond

	assert.Error(t, svc.WaitForConnection(context.Background()))
}

func TestNewRedisService_Empty(t *testing.T) {
	_, err := NewRedisService("", discardLogger())
	assert.Error(t, err)
}
