package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"GeoWatch-App/internal/domain/model"
	domainrepo "GeoWatch-App/internal/domain/repository"
)

// geoRecordsChannel レコード変更を通知するLISTEN/NOTIFYチャネル名
const geoRecordsChannel = "geo_records_changed"

// PostgresGeoRangeRepository PostgreSQLのジオハッシュ範囲スキャンと
// LISTEN/NOTIFYを組み合わせたストア実装。通知を受けるたびに各購読の
// 範囲クエリを再実行して全件スナップショットを配信する。
// 位置フィールドは1レコードにつき1つなのでfieldPathは列に固定で対応する
type PostgresGeoRangeRepository struct {
	db       *sql.DB
	listener *pq.Listener

	mu     sync.Mutex
	subs   map[int]*postgresRangeSubscription
	nextID int
}

var _ domainrepo.GeoStoreRepository = (*PostgresGeoRangeRepository)(nil)

// NewPostgresGeoRangeRepository は新しいPostgresGeoRangeRepositoryインスタンスを作成し、
// 変更通知の受信を開始する
func NewPostgresGeoRangeRepository(db *sql.DB, connStr string) (*PostgresGeoRangeRepository, error) {
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, nil)
	if err := listener.Listen(geoRecordsChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("変更通知チャネルの購読に失敗: %w", err)
	}

	r := &PostgresGeoRangeRepository{
		db:       db,
		listener: listener,
		subs:     make(map[int]*postgresRangeSubscription),
	}
	go r.listenLoop()
	return r, nil
}

// EnsureSchema テーブルとジオハッシュ索引を作成する（存在すれば何もしない）
func (r *PostgresGeoRangeRepository) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS geo_records (
			id        TEXT PRIMARY KEY,
			latitude  DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			geohash   TEXT NOT NULL,
			payload   JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS idx_geo_records_geohash ON geo_records (geohash);`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("スキーマの作成に失敗: %w", err)
	}
	return nil
}

// Close 変更通知の受信を停止する
func (r *PostgresGeoRangeRepository) Close() error {
	return r.listener.Close()
}

// RangeSubscribe キー範囲 [startKey, endKey) のライブ購読を開始する。
// 購読直後に現時点のスナップショットを1回配信する
func (r *PostgresGeoRangeRepository) RangeSubscribe(ctx context.Context, fieldPath, startKey, endKey string) (domainrepo.RangeSubscription, error) {
	records, err := r.queryRange(ctx, startKey, endKey)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	sub := &postgresRangeSubscription{
		repo:     r,
		id:       id,
		startKey: startKey,
		endKey:   endKey,
		ch:       make(chan model.RangeSnapshot, 1),
	}
	r.subs[id] = sub
	sub.emitLocked(model.RangeSnapshot{Records: records})
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return sub, nil
}

// SaveRecord レコードを保存（同一IDは上書き）して変更を通知する
func (r *PostgresGeoRangeRepository) SaveRecord(ctx context.Context, fieldPath string, record model.GeoRecord) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("ペイロードのシリアライズに失敗: %w", err)
	}

	const query = `
		INSERT INTO geo_records (id, latitude, longitude, geohash, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			latitude  = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			geohash   = EXCLUDED.geohash,
			payload   = EXCLUDED.payload`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Point.Geopoint.Latitude,
		record.Point.Geopoint.Longitude,
		record.Point.Geohash,
		payload,
	); err != nil {
		return fmt.Errorf("レコードの保存に失敗しました: %w", err)
	}

	return r.notify(ctx, record.ID)
}

// DeleteRecord レコードを削除して変更を通知する
func (r *PostgresGeoRangeRepository) DeleteRecord(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM geo_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("レコードの削除に失敗しました: %w", err)
	}
	return r.notify(ctx, id)
}

func (r *PostgresGeoRangeRepository) notify(ctx context.Context, recordID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, geoRecordsChannel, recordID); err != nil {
		return fmt.Errorf("変更通知の送信に失敗しました: %w", err)
	}
	return nil
}

// listenLoop 変更通知を受けるたびに全購読のスナップショットを再構築する。
// pq.Listenerは再接続時にnil通知を流すので、その場合も取りこぼし防止のため再構築する
func (r *PostgresGeoRangeRepository) listenLoop() {
	for range r.listener.Notify {
		r.refreshAll()
	}
}

func (r *PostgresGeoRangeRepository) refreshAll() {
	r.mu.Lock()
	active := make([]*postgresRangeSubscription, 0, len(r.subs))
	for _, sub := range r.subs {
		active = append(active, sub)
	}
	r.mu.Unlock()

	for _, sub := range active {
		records, err := r.queryRange(context.Background(), sub.startKey, sub.endKey)

		r.mu.Lock()
		if _, ok := r.subs[sub.id]; !ok {
			r.mu.Unlock()
			continue
		}
		if err != nil {
			// クエリ失敗は購読の終端イベント
			sub.emitLocked(model.RangeSnapshot{Err: err})
			r.mu.Unlock()
			sub.Unsubscribe()
			continue
		}
		sub.emitLocked(model.RangeSnapshot{Records: records})
		r.mu.Unlock()
	}
}

// queryRange ジオハッシュ昇順の範囲スキャン
func (r *PostgresGeoRangeRepository) queryRange(ctx context.Context, startKey, endKey string) ([]model.GeoRecord, error) {
	const query = `
		SELECT id, latitude, longitude, geohash, payload
		FROM geo_records
		WHERE geohash >= $1 AND geohash < $2
		ORDER BY geohash ASC`
	rows, err := r.db.QueryContext(ctx, query, startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("範囲スキャンに失敗しました: %w", err)
	}
	defer rows.Close()

	records := make([]model.GeoRecord, 0)
	for rows.Next() {
		var (
			rec     model.GeoRecord
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Point.Geopoint.Latitude, &rec.Point.Geopoint.Longitude, &rec.Point.Geohash, &payload); err != nil {
			return nil, fmt.Errorf("行の読み取りに失敗しました: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, fmt.Errorf("ペイロードの復元に失敗しました: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("範囲スキャンの読み取り中にエラー: %w", err)
	}
	return records, nil
}

// postgresRangeSubscription PostgreSQLストアの範囲購読1本
type postgresRangeSubscription struct {
	repo     *PostgresGeoRangeRepository
	id       int
	startKey string
	endKey   string
	ch       chan model.RangeSnapshot
	once     sync.Once
}

func (s *postgresRangeSubscription) Snapshots() <-chan model.RangeSnapshot {
	return s.ch
}

// Unsubscribe 購読を解除する。冪等。解除後の配信はない
func (s *postgresRangeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.repo.mu.Lock()
		delete(s.repo.subs, s.id)
		close(s.ch)
		s.repo.mu.Unlock()
	})
}

// emitLocked repo.muを保持した状態で呼ぶこと。
// 容量1のチャネルに対し、未読の古いスナップショットは最新値で置き換える
func (s *postgresRangeSubscription) emitLocked(snap model.RangeSnapshot) {
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
