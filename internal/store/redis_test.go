package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFromClient(client), mr
}

type cached struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRedisStore_JSONRoundTrip(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SetJSON(ctx, "k", cached{Name: "goal", Count: 3}, time.Minute); err != nil {
		t.Fatalf("SetJSON() error: %v", err)
	}

	var got cached
	ok, err := rs.GetJSON(ctx, "k", &got)
	if err != nil {
		t.Fatalf("GetJSON() error: %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if got.Name != "goal" || got.Count != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestRedisStore_Missing(t *testing.T) {
	rs, _ := setupTestRedis(t)

	var got cached
	ok, err := rs.GetJSON(context.Background(), "absent", &got)
	if err != nil {
		t.Fatalf("GetJSON() error: %v", err)
	}
	if ok {
		t.Error("expected missing key to report false")
	}
}

func TestRedisStore_Expires(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SetJSON(ctx, "k", cached{Name: "x"}, 10*time.Second); err != nil {
		t.Fatalf("SetJSON() error: %v", err)
	}
	mr.FastForward(11 * time.Second)

	var got cached
	if ok, _ := rs.GetJSON(ctx, "k", &got); ok {
		t.Error("expected key to expire")
	}
}

func TestRedisStore_CorruptValue(t *testing.T) {
	rs, mr := setupTestRedis(t)
	mr.Set("k", "{not json")

	var got cached
	if _, err := rs.GetJSON(context.Background(), "k", &got); err == nil {
		t.Error("expected decode error")
	}
}
