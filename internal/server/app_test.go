package server

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/logging"
	"github.com/dmitrijs2005/fieldsync/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memConfig(addr string) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.InMemory = true
	c.EndpointAddrGRPC = addr
	return c
}

func TestNewApp_InMemory(t *testing.T) {
	app, err := NewApp(context.Background(), memConfig("127.0.0.1:0"), logging.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, app.db)
	assert.NotNil(t, app.userService)
	assert.NotNil(t, app.recordService)
}

func TestNewApp_BadDSN(t *testing.T) {
	c := memConfig("127.0.0.1:0")
	c.InMemory = false
	c.DatabaseDSN = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewApp(ctx, c, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), memConfig("127.0.0.1:0"), logging.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestRun_BadAddress(t *testing.T) {
	app, err := NewApp(context.Background(), memConfig("127.0.0.1:99999"), logging.NewNopLogger())
	require.NoError(t, err)

	assert.Error(t, app.Run(context.Background()))
}
