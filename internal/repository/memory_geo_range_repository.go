package repository

import (
	"context"
	"sort"
	"sync"

	"GeoWatch-App/internal/domain/model"
	domainrepo "GeoWatch-App/internal/domain/repository"
)

// MemoryGeoRangeRepository ジオハッシュ順のインメモリストア。
// ローカル開発とテストで本物のストアの代わりに使う。書き込みのたびに
// 全アクティブ購読へ最新の範囲スナップショットを再配信する。
type MemoryGeoRangeRepository struct {
	mu      sync.Mutex
	records map[string]model.GeoRecord
	subs    map[int]*memoryRangeSubscription
	nextID  int
}

var _ domainrepo.GeoStoreRepository = (*MemoryGeoRangeRepository)(nil)

// NewMemoryGeoRangeRepository は新しいMemoryGeoRangeRepositoryインスタンスを作成する
func NewMemoryGeoRangeRepository() *MemoryGeoRangeRepository {
	return &MemoryGeoRangeRepository{
		records: make(map[string]model.GeoRecord),
		subs:    make(map[int]*memoryRangeSubscription),
	}
}

// RangeSubscribe キー範囲 [startKey, endKey) のライブ購読を開始する。
// 購読直後に現時点のスナップショットを1回配信する
func (r *MemoryGeoRangeRepository) RangeSubscribe(ctx context.Context, fieldPath, startKey, endKey string) (domainrepo.RangeSubscription, error) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	sub := &memoryRangeSubscription{
		repo:     r,
		id:       id,
		startKey: startKey,
		endKey:   endKey,
		ch:       make(chan model.RangeSnapshot, 1),
	}
	r.subs[id] = sub
	sub.emitLocked(r.snapshotLocked(startKey, endKey))
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return sub, nil
}

// SaveRecord レコードを保存（同一IDは上書き）して全購読に変更を通知する
func (r *MemoryGeoRangeRepository) SaveRecord(ctx context.Context, fieldPath string, record model.GeoRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	r.notifyAllLocked()
	return nil
}

// DeleteRecord レコードを削除して全購読に変更を通知する
func (r *MemoryGeoRangeRepository) DeleteRecord(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	r.notifyAllLocked()
	return nil
}

// ActiveSubscriptions 現在アクティブな範囲購読の本数を返す
func (r *MemoryGeoRangeRepository) ActiveSubscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *MemoryGeoRangeRepository) notifyAllLocked() {
	for _, sub := range r.subs {
		sub.emitLocked(r.snapshotLocked(sub.startKey, sub.endKey))
	}
}

// snapshotLocked キー範囲にマッチするレコードをジオハッシュ昇順で返す
func (r *MemoryGeoRangeRepository) snapshotLocked(startKey, endKey string) []model.GeoRecord {
	matched := make([]model.GeoRecord, 0)
	for _, rec := range r.records {
		key := rec.Point.Geohash
		if key >= startKey && key < endKey {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Point.Geohash < matched[j].Point.Geohash
	})
	return matched
}

// memoryRangeSubscription インメモリストアの範囲購読1本
type memoryRangeSubscription struct {
	repo     *MemoryGeoRangeRepository
	id       int
	startKey string
	endKey   string
	ch       chan model.RangeSnapshot
	once     sync.Once
}

func (s *memoryRangeSubscription) Snapshots() <-chan model.RangeSnapshot {
	return s.ch
}

// Unsubscribe 購読を解除する。冪等。解除後の配信はない
func (s *memoryRangeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.repo.mu.Lock()
		delete(s.repo.subs, s.id)
		close(s.ch)
		s.repo.mu.Unlock()
	})
}

// emitLocked repo.muを保持した状態で呼ぶこと。
// 容量1のチャネルに対し、未読の古いスナップショットは最新値で置き換える
func (s *memoryRangeSubscription) emitLocked(records []model.GeoRecord) {
	snap := model.RangeSnapshot{Records: records}
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}
