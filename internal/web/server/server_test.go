package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dphaener/ddmark/internal/cli/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(okHandler())

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            9090,
		WriteTimeout:    time.Minute,
		ShutdownTimeout: 5 * time.Second,
	}, okHandler(), nil)

	assert.Equal(t, "127.0.0.1:9090", cfg.Address)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout, "zero keeps the default")
	assert.Equal(t, time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Address: ":0"})
	assert.Error(t, err)
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	cfg := DefaultConfig(okHandler())
	cfg.Address = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	srv, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	var hooked []int
	srv.RegisterHook(func(ctx context.Context) error {
		hooked = append(hooked, 1)
		return nil
	})
	srv.RegisterHook(func(ctx context.Context) error {
		hooked = append(hooked, 2)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []int{1, 2}, hooked)
}

func TestShutdown_HookError(t *testing.T) {
	srv, err := New(DefaultConfig(okHandler()))
	require.NoError(t, err)

	ran := false
	srv.RegisterHook(func(ctx context.Context) error { return errors.New("cache close failed") })
	srv.RegisterHook(func(ctx context.Context) error {
		ran = true
		return nil
	})

	err = srv.Shutdown(context.Background())
	assert.ErrorContains(t, err, "cache close failed")
	assert.True(t, ran, "later hooks still run")
}

func TestRun_ListenError(t *testing.T) {
	cfg := DefaultConfig(okHandler())
	cfg.Address = "127.0.0.1:-1"
	srv, err := New(cfg)
	require.NoError(t, err)

	assert.Error(t, srv.Run(context.Background()))
}
