package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// setupRedis starts a throwaway Redis container.
func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port()), KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPriceCache(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	pc := NewPriceCache(c, time.Minute)

	now := time.Now()
	require.NoError(t, pc.SetPrice(ctx, "weth", 2500, now))
	require.NoError(t, pc.SetPrice(ctx, "old", 1, now.Add(-time.Hour)))

	p, err := pc.GetPrice(ctx, "weth")
	require.NoError(t, err)
	assert.Equal(t, 2500.0, p)

	_, err = pc.GetPrice(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	_, err = pc.GetPrice(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	prices, err := pc.GetPrices(ctx, []string{"weth", "old", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"weth": 2500}, prices)

	// Keys are namespaced.
	n, err := c.Underlying().Exists(ctx, "test:price:weth").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLockManager(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "token:weth", 5*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "token:weth", 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "token:weth", 5*time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiter(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := range 3 {
		ok, err := rl.Allow(ctx, "alice", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "alice", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "bob", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBus(t *testing.T) {
	c := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c)

	ch, err := bus.Subscribe(ctx, "positions")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "positions", []byte(`{"event":"position_opened"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"event":"position_opened"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	require.NoError(t, bus.StreamAppend(ctx, "positions:events", []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, "positions:events", []byte("b")))
	msgs, err := bus.StreamRead(ctx, "positions:events", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", string(msgs[1].Payload))

	rest, err := bus.StreamRead(ctx, "positions:events", msgs[1].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestKeyPrefix(t *testing.T) {
	c := NewFromClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}), "vb:")
	defer c.Close()
	assert.Equal(t, "vb:price:weth", c.key("price", "weth"))
	assert.Equal(t, "vb:lock:token:weth", c.key("lock", "token:weth"))
}
