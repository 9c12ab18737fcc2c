package links

import (
	"context"
	"sync"

	"github.com/hitoshi/searchsaver/internal/model"
)

// Subscription は保存リストのライブ購読ハンドル。
// Updatesからは常に最新のスナップショットだけが読める。
// 読み出しが遅れた場合、古いスナップショットは新しいもので置き換えられる。
type Subscription struct {
	ownerID   string
	sessionID string

	updates chan []*model.SavedLink
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

func newSubscription(ownerID, sessionID string, cancel context.CancelFunc) *Subscription {
	return &Subscription{
		ownerID:   ownerID,
		sessionID: sessionID,
		updates:   make(chan []*model.SavedLink, 1),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

// Updates はスナップショットを受け取るチャネルを返す。購読終了時にcloseされる。
func (s *Subscription) Updates() <-chan []*model.SavedLink {
	return s.updates
}

// Done は購読が完全に終了したときにcloseされるチャネルを返す。
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close は購読を停止する。複数回呼んでもよい。
func (s *Subscription) Close() {
	s.cancel()
}

// deliver はスナップショットを配信する。未読のスナップショットがあれば置き換える。
// 送信は購読ごとに1つのgoroutineからのみ行われる。
func (s *Subscription) deliver(links []*model.SavedLink) {
	select {
	case s.updates <- links:
		return
	default:
	}

	select {
	case <-s.updates:
	default:
	}
	s.updates <- links
}

// finish は配信チャネルを閉じて終了を通知する。
func (s *Subscription) finish() {
	s.once.Do(func() {
		close(s.updates)
		close(s.done)
	})
}
