package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func unreachableCache(t *testing.T) *Cache {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
	return New(rdb, time.Second)
}

func TestCache_GetDegradesToMissOnUnreachableRedis(t *testing.T) {
	c := unreachableCache(t)
	var out string
	if ok := c.Get(context.Background(), "k", &out); ok {
		t.Fatal("expected miss when redis is unreachable")
	}
}

func TestCache_SetDegradesSilentlyOnUnreachableRedis(t *testing.T) {
	c := unreachableCache(t)
	c.Set(context.Background(), "k", "v") // must not panic or block
}

func TestTokenKey(t *testing.T) {
	if got := TokenKey("abc"); got != "token:abc" {
		t.Errorf("got %q", got)
	}
}

func TestEmbeddingKey(t *testing.T) {
	k1 := EmbeddingKey("model-a", "hello")
	k2 := EmbeddingKey("model-a", "hello")
	k3 := EmbeddingKey("model-a", "world")
	if k1 != k2 {
		t.Error("expected deterministic key for same inputs")
	}
	if k1 == k3 {
		t.Error("expected distinct keys for distinct prompts")
	}
}

func TestTokensTypedHelpers(t *testing.T) {
	c := unreachableCache(t)
	tokens := NewTokens(c)
	if _, ok := tokens.Get(context.Background(), "raw"); ok {
		t.Fatal("expected miss")
	}
	tokens.Set(context.Background(), "raw", VerifiedIdentity{UserID: "u1"})
	tokens.Invalidate(context.Background(), "raw")
}

func TestEmbeddingsTypedHelpers(t *testing.T) {
	c := unreachableCache(t)
	embeddings := NewEmbeddings(c)
	if _, ok := embeddings.Get(context.Background(), "m", "p"); ok {
		t.Fatal("expected miss")
	}
	embeddings.Set(context.Background(), "m", "p", []float32{1, 2, 3})
}
