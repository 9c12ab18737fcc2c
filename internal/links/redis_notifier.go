package links

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// channelPrefix はRedis Pub/Subのチャネル名の接頭辞。
const channelPrefix = "searchsaver:links:"

// changedMessage はPublishするペイロード。受信側は内容を使わない。
const changedMessage = "changed"

// RedisNotifier はRedis Pub/Subで変更を通知するNotifier。
// 複数のサーバーインスタンス間でライブ更新を共有できる。
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier は既存のRedisクライアントからRedisNotifierを生成する。
func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

// NewRedisNotifierWithURL はredis://形式のURLからRedisNotifierを生成する。
func NewRedisNotifierWithURL(redisURL string, logger *slog.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisNotifier(redis.NewClient(opts), logger), nil
}

// Ping はRedisへの接続を確認する。
func (n *RedisNotifier) Ping(ctx context.Context) error {
	if err := n.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる。
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func channelName(ownerID string) string {
	return channelPrefix + ownerID
}

// Publish は所有者のチャネルに変更を通知する。
func (n *RedisNotifier) Publish(ctx context.Context, ownerID string) error {
	if err := n.client.Publish(ctx, channelName(ownerID), changedMessage).Err(); err != nil {
		return fmt.Errorf("failed to publish link change: %w", err)
	}
	return nil
}

// Listen は所有者のチャネルを購読する。
// 購読の確立を待ってから返すため、返却後のPublishは取りこぼさない。
func (n *RedisNotifier) Listen(ctx context.Context, ownerID string) (<-chan struct{}, func(), error) {
	pubsub := n.client.Subscribe(ctx, channelName(ownerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe link changes: %w", err)
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	msgs := pubsub.Channel()

	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				n.logger.Warn("failed to close redis subscription",
					slog.String("owner_id", ownerID),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	return out, stop, nil
}

var _ Notifier = (*RedisNotifier)(nil)
