package links

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/searchsaver/internal/metrics"
	"github.com/hitoshi/searchsaver/internal/model"
)

func TestMemoryNotifier_PublishCoalesces(t *testing.T) {
	n := NewMemoryNotifier()
	ch, stop, err := n.Listen(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer stop()

	// 受信前の連続通知は1件にまとめられ、Publishはブロックしない
	for i := 0; i < 3; i++ {
		if err := n.Publish(context.Background(), "owner-1"); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	<-ch
	select {
	case <-ch:
		t.Error("expected coalesced notification")
	default:
	}
}

func TestMemoryNotifier_StopIsIdempotent(t *testing.T) {
	n := NewMemoryNotifier()
	_, stop, _ := n.Listen(context.Background(), "owner-1")

	stop()
	stop()

	if n.listenerCount("owner-1") != 0 {
		t.Error("listener should be removed")
	}
}

// newMiniredisNotifier はminiredisに接続したRedisNotifierを生成する。
func newMiniredisNotifier(t *testing.T) *RedisNotifier {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	n := NewRedisNotifier(client, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(func() { n.Close() })
	return n
}

func TestRedisNotifier_ListenReceivesPublish(t *testing.T) {
	n := newMiniredisNotifier(t)
	ctx := context.Background()

	if err := n.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	ch, stop, err := n.Listen(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer stop()

	if err := n.Publish(ctx, "owner-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis notification")
	}
}

func TestRedisNotifier_OtherOwnerNotDelivered(t *testing.T) {
	n := newMiniredisNotifier(t)
	ctx := context.Background()

	ch, stop, err := n.Listen(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer stop()

	if err := n.Publish(ctx, "owner-2"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-ch:
		t.Fatal("notification for another owner must not be delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewRedisNotifierWithURL_InvalidURL(t *testing.T) {
	if _, err := NewRedisNotifierWithURL("://bad", slog.Default()); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

// Redis経由で別インスタンスのServiceの変更が購読者に届く
func TestService_WithRedisNotifier_CrossInstance(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	repo := &mockLinkRepo{}

	newInstance := func() *Service {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewService(repo, NewRedisNotifier(client, logger), metrics.Nop{}, logger)
	}
	reader := newInstance()
	writer := newInstance()

	sub, err := reader.Subscribe(context.Background(), "owner-1", "session-1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()
	<-sub.Updates()

	if _, err := writer.Save(context.Background(), "owner-1", SaveInput{URL: "https://go.dev", EngineLabel: "Web"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap := waitForSnapshot(t, sub, func(l []*model.SavedLink) bool { return len(l) == 1 })
	if snap[0].Engine != "Web" {
		t.Errorf("Engine = %q, want Web", snap[0].Engine)
	}
}
