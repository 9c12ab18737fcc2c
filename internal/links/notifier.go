package links

import (
	"context"
	"sync"
)

// Notifier は所有者単位で保存リストの変更を通知する。
// 通知は「変更があった」ことだけを伝え、内容は受信側がストアから読み直す。
type Notifier interface {
	// Publish はownerIDの保存リストが変更されたことを通知する。
	Publish(ctx context.Context, ownerID string) error
	// Listen はownerIDの変更通知を受け取るチャネルと停止関数を返す。
	// 連続した通知はまとめられることがある。停止関数は複数回呼んでもよい。
	Listen(ctx context.Context, ownerID string) (<-chan struct{}, func(), error)
}

// MemoryNotifier はプロセス内で完結するNotifier。
// REDIS_URL未設定の単一インスタンス構成とテストで使う。
type MemoryNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

// NewMemoryNotifier はMemoryNotifierを生成する。
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{listeners: make(map[string]map[chan struct{}]struct{})}
}

// Publish は登録済みの全リスナーに通知する。受信待ちの通知がある場合はまとめる。
func (n *MemoryNotifier) Publish(_ context.Context, ownerID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.listeners[ownerID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Listen はリスナーを登録する。
func (n *MemoryNotifier) Listen(_ context.Context, ownerID string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.listeners[ownerID] == nil {
		n.listeners[ownerID] = make(map[chan struct{}]struct{})
	}
	n.listeners[ownerID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.listeners[ownerID], ch)
			if len(n.listeners[ownerID]) == 0 {
				delete(n.listeners, ownerID)
			}
		})
	}
	return ch, stop, nil
}

// listenerCount は登録中のリスナー数を返す。
func (n *MemoryNotifier) listenerCount(ownerID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[ownerID])
}

var _ Notifier = (*MemoryNotifier)(nil)
