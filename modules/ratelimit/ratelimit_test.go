package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedisAddr = "localhost:6379"

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

type stubLimiter struct {
	result *Result
	err    error
	calls  int
}

func (s *stubLimiter) Allow(_ context.Context, _ string) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGuard_Allow(t *testing.T) {
	tests := []struct {
		name    string
		limiter *stubLimiter
		want    bool
	}{
		{name: "allowed", limiter: &stubLimiter{result: &Result{Allowed: true}}, want: true},
		{name: "denied", limiter: &stubLimiter{result: &Result{Allowed: false, RetryAfter: time.Second}}, want: false},
		{name: "fails open", limiter: &stubLimiter{err: errors.New("connection refused")}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewGuard(tt.limiter, &mockLogger{})
			assert.True(t, guard.Enabled())
			assert.Equal(t, tt.want, guard.Allow(context.Background(), "user-1"))
			assert.Equal(t, 1, tt.limiter.calls)
		})
	}
}

func TestGuard_Disabled(t *testing.T) {
	guard := NewGuard(nil, &mockLogger{})
	assert.False(t, guard.Enabled())
	assert.True(t, guard.Allow(context.Background(), "user-1"))

	var nilGuard *Guard
	assert.True(t, nilGuard.Allow(context.Background(), "user-1"))
}

func TestPluginModule_WithoutRedis(t *testing.T) {
	plugin := NewPluginModule(PluginConfig{Chat: Config{Limit: 1, Window: time.Second}}, &mockLogger{})
	ctx := context.Background()

	require.NoError(t, plugin.Start(ctx))
	assert.Nil(t, plugin.Storage())
	assert.False(t, plugin.ChatGuard().Enabled())
	assert.True(t, plugin.ChatGuard().Allow(ctx, "user-1"))
	assert.True(t, plugin.Health(ctx).Healthy)
	assert.NoError(t, plugin.Stop(ctx))
}

func TestPluginModule_UnreachableRedis(t *testing.T) {
	plugin := NewPluginModule(PluginConfig{
		Addr: "127.0.0.1:1",
		Chat: Config{Limit: 1, Window: time.Second},
	}, &mockLogger{})
	ctx := context.Background()

	require.NoError(t, plugin.Start(ctx), "an unreachable Redis must not block startup")
	assert.False(t, plugin.ChatGuard().Enabled())
	assert.Nil(t, plugin.Storage())
}

func TestParseRedisAddr(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{addr: "redis:6380", wantHost: "redis", wantPort: 6380},
		{addr: ":6379", wantHost: "127.0.0.1", wantPort: 6379},
		{addr: "redis", wantHost: "127.0.0.1", wantPort: 6379},
		{addr: "redis:abc", wantHost: "redis", wantPort: 6379},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port := parseRedisAddr(tt.addr)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()

	prefix := "test:ratelimit:" + time.Now().Format("150405.000000") + ":"
	t.Cleanup(func() {
		client.Del(context.Background(), prefix+"user-1", prefix+"user-1:counter", prefix+"user-2", prefix+"user-2:counter")
	})

	limiter := NewSlidingWindowLimiter(client, Config{Limit: 3, Window: time.Minute}, prefix)

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3-i-1, result.Remaining)
	}

	result, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryAfter)

	other, err := limiter.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()

	prefix := "test:ratelimit:slide:" + time.Now().Format("150405.000000") + ":"
	t.Cleanup(func() {
		client.Del(context.Background(), prefix+"user", prefix+"user:counter")
	})

	limiter := NewSlidingWindowLimiter(client, Config{Limit: 1, Window: time.Minute}, prefix)
	start := time.Now()
	limiter.now = func() time.Time { return start }

	first, err := limiter.Allow(ctx, "user")
	require.NoError(t, err)
	require.True(t, first.Allowed)

	second, err := limiter.Allow(ctx, "user")
	require.NoError(t, err)
	assert.False(t, second.Allowed)

	limiter.now = func() time.Time { return start.Add(time.Minute + time.Millisecond) }
	third, err := limiter.Allow(ctx, "user")
	require.NoError(t, err)
	assert.True(t, third.Allowed)
}
