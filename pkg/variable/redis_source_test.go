package variable

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisSource(t *testing.T, prefix string) (*RedisSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSource(client, prefix), mr
}

func TestRedisSourceLookupHit(t *testing.T) {
	src, mr := newTestRedisSource(t, "pipeline:vars:")
	mr.Set("pipeline:vars:region", `{"kind":"string","value":"eu-west-1","immutable":false}`)

	v, err := src.Lookup(context.Background(), "region")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if v.Kind != KindString || v.Value != "eu-west-1" {
		t.Errorf("Lookup() = %+v, want kind=string value=eu-west-1", v)
	}
}

func TestRedisSourceLookupMiss(t *testing.T) {
	src, _ := newTestRedisSource(t, "pipeline:vars:")

	if _, err := src.Lookup(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestRedisSourceSynchronizeDetectsGenerationChange(t *testing.T) {
	src, mr := newTestRedisSource(t, "pipeline:vars:")

	changed, err := src.Synchronize(context.Background())
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("Synchronize() on first call with no generation key = %v, want none", changed)
	}

	mr.Set("pipeline:vars:__generation", "1")
	changed, err = src.Synchronize(context.Background())
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if len(changed) != 1 {
		t.Fatalf("Synchronize() after generation bump = %v, want one synthetic change", changed)
	}

	changed, err = src.Synchronize(context.Background())
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("Synchronize() with unchanged generation = %v, want none", changed)
	}
}
