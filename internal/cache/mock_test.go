package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockKeyValue(t *testing.T) {
	ctx := context.Background()
	m := NewMockRedisClient()

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Expected ErrMiss, got %v", err)
	}

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Expected v, got %q (%v)", got, err)
	}

	if err := m.Del(ctx, "k"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss after delete, got %v", err)
	}
}

func TestMockExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMockRedisClient()

	_ = m.Set(ctx, "short", []byte("x"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, err := m.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected expired key to miss, got %v", err)
	}
}

func TestMockPubSub(t *testing.T) {
	ctx := context.Background()
	m := NewMockRedisClient()

	a, closeA, _ := m.Subscribe(ctx, "chan")
	b, closeB, _ := m.Subscribe(ctx, "chan")
	other, closeOther, _ := m.Subscribe(ctx, "other")
	defer closeOther()

	_ = m.Publish(ctx, "chan", []byte("hello"))

	for name, ch := range map[string]<-chan []byte{"a": a, "b": b} {
		select {
		case msg := <-ch:
			if string(msg) != "hello" {
				t.Errorf("%s: expected hello, got %q", name, msg)
			}
		case <-time.After(time.Second):
			t.Errorf("%s: timed out", name)
		}
	}

	select {
	case msg := <-other:
		t.Errorf("Unexpected message on other channel: %q", msg)
	default:
	}

	_ = closeA()
	_ = closeA()
	if _, ok := <-a; ok {
		t.Error("Expected closed channel after unsubscribe")
	}

	_ = closeB()
	if err := m.Publish(ctx, "chan", []byte("late")); err != nil {
		t.Errorf("Publish with no subscribers failed: %v", err)
	}
}
