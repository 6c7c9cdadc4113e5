package service

import (
	"context"
	"sync"

	"GeoWatch-App/internal/domain/model"
	"GeoWatch-App/internal/domain/repository"
)

// WithinSubscription 実行中のwithin検索。複数のコンシューマがSnapshots()で
// 合流でき、検索開始後に参加したコンシューマには直近の統合スナップショットが
// 即座に再配信される。Unsubscribe()で配下のセル購読ごと停止する。
type WithinSubscription struct {
	id     string
	cancel context.CancelFunc
	subs   []repository.RangeSubscription
	done   chan struct{}

	stopOnce sync.Once

	mu        sync.Mutex
	stopped   bool
	latest    []model.QueryResult
	hasLatest bool
	err       error
	consumers map[int]chan model.WithinSnapshot
	nextID    int
}

func newWithinSubscription(id string, cancel context.CancelFunc, subs []repository.RangeSubscription) *WithinSubscription {
	return &WithinSubscription{
		id:        id,
		cancel:    cancel,
		subs:      subs,
		done:      make(chan struct{}),
		consumers: make(map[int]chan model.WithinSnapshot),
	}
}

// ID 診断ログ用のクエリ相関ID
func (w *WithinSubscription) ID() string {
	return w.id
}

// Snapshots 統合スナップショットの配信チャネルを返す。
// チャネルは容量1で、読み残した古い値は新しい値で置き換えられる
// （毎回全量スナップショットなので中間値の欠落は観測上無害）。
// 直近のスナップショットがあれば最初に再配信される。
func (w *WithinSubscription) Snapshots() <-chan model.WithinSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan model.WithinSnapshot, 1)
	if w.err != nil {
		ch <- model.WithinSnapshot{Err: w.err}
		close(ch)
		return ch
	}
	if w.stopped {
		close(ch)
		return ch
	}
	if w.hasLatest {
		ch <- model.WithinSnapshot{Results: w.latest}
	}
	w.consumers[w.nextID] = ch
	w.nextID++
	return ch
}

// Latest 直近の統合スナップショットを返す。まだ1度も配信されていなければfalse
func (w *WithinSubscription) Latest() ([]model.QueryResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest, w.hasLatest
}

// Err 検索を終了させたエラーを返す（正常動作中・正常停止ならnil）
func (w *WithinSubscription) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done 検索の完全停止を通知するチャネル
func (w *WithinSubscription) Done() <-chan struct{} {
	return w.done
}

// Unsubscribe 検索全体を停止する。冪等。
// 戻った時点で配下のセル購読はすべて解除済みで、以降コンシューマへの配信はない
func (w *WithinSubscription) Unsubscribe() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()

		w.cancel()
		for _, sub := range w.subs {
			sub.Unsubscribe()
		}

		w.mu.Lock()
		for _, ch := range w.consumers {
			close(ch)
		}
		w.consumers = nil
		w.mu.Unlock()

		close(w.done)
	})
}

// publish 新しい統合スナップショットをキャッシュして全コンシューマに配信する
func (w *WithinSubscription) publish(results []model.QueryResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.latest = results
	w.hasLatest = true
	w.send(model.WithinSnapshot{Results: results})
}

// fail 終端エラーを記録して全コンシューマに配信する
func (w *WithinSubscription) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.err = err
	w.send(model.WithinSnapshot{Err: err})
}

// send 呼び出し側がmuを保持していること。
// 容量1のチャネルに対し、未読の古い値があれば捨ててから書き込む
func (w *WithinSubscription) send(snap model.WithinSnapshot) {
	for _, ch := range w.consumers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
