package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestDefaultConfigsHonourEnv(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "12")
	t.Setenv("REDIS_POOL_SIZE", "3")

	if got := DefaultPostgresConfig().MaxConns; got != 12 {
		t.Errorf("expected 12 postgres conns, got %d", got)
	}
	if got := DefaultRedisConfig().PoolSize; got != 3 {
		t.Errorf("expected redis pool 3, got %d", got)
	}
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := mr.Get("k")
	if err != nil {
		t.Fatalf("miniredis get failed: %v", err)
	}
	if got != "v" {
		t.Errorf("expected value in miniredis, got %q", got)
	}
}

func TestNewRedisFailures(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not a url"); err == nil {
		t.Error("expected parse error")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedis(context.Background(), "redis://"+addr); err == nil {
		t.Error("expected ping error for closed server")
	}
}

func TestNewPostgresRejectsBadURL(t *testing.T) {
	if _, err := NewPostgres(context.Background(), "://nope"); err == nil {
		t.Error("expected parse error")
	}
}
