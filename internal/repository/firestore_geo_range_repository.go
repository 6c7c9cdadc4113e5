package repository

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"GeoWatch-App/internal/domain/model"
	domainrepo "GeoWatch-App/internal/domain/repository"
)

// FirestoreGeoRangeRepository Firestoreのスナップショットリスナーを
// ライブ範囲購読として使うストア実装。位置フィールドは既存データとの互換のため
// {geopoint: GeoPoint, geohash: string} の構成で保存する
type FirestoreGeoRangeRepository struct {
	client     *firestore.Client
	collection string
}

var _ domainrepo.GeoStoreRepository = (*FirestoreGeoRangeRepository)(nil)

// NewFirestoreGeoRangeRepository は新しいFirestoreGeoRangeRepositoryインスタンスを作成する
func NewFirestoreGeoRangeRepository(client *firestore.Client, collection string) *FirestoreGeoRangeRepository {
	return &FirestoreGeoRangeRepository{
		client:     client,
		collection: collection,
	}
}

// RangeSubscribe 位置フィールドのgeohashに対するキー範囲 [startKey, endKey) の
// ライブ購読を開始する。Firestoreのリスナーは購読直後に現時点の全件を配信し、
// 以降は対象範囲が変化するたびに全件スナップショットを配信する
func (r *FirestoreGeoRangeRepository) RangeSubscribe(ctx context.Context, fieldPath, startKey, endKey string) (domainrepo.RangeSubscription, error) {
	query := r.client.Collection(r.collection).
		OrderBy(fieldPath+".geohash", firestore.Asc).
		StartAt(startKey).
		EndBefore(endKey)

	sub := &firestoreRangeSubscription{
		it:        query.Snapshots(ctx),
		fieldPath: fieldPath,
		ch:        make(chan model.RangeSnapshot, 1),
	}
	go sub.run()
	return sub, nil
}

// SaveRecord レコードを保存する（同一IDは上書き）
func (r *FirestoreGeoRangeRepository) SaveRecord(ctx context.Context, fieldPath string, record model.GeoRecord) error {
	data := make(map[string]interface{}, len(record.Payload)+1)
	for k, v := range record.Payload {
		data[k] = v
	}
	data[fieldPath] = map[string]interface{}{
		"geopoint": &latlng.LatLng{
			Latitude:  record.Point.Geopoint.Latitude,
			Longitude: record.Point.Geopoint.Longitude,
		},
		"geohash": record.Point.Geohash,
	}

	if _, err := r.client.Collection(r.collection).Doc(record.ID).Set(ctx, data); err != nil {
		return fmt.Errorf("レコードの保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteRecord レコードを削除する
func (r *FirestoreGeoRangeRepository) DeleteRecord(ctx context.Context, id string) error {
	if _, err := r.client.Collection(r.collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("レコードの削除に失敗しました: %w", err)
	}
	return nil
}

// firestoreRangeSubscription Firestoreスナップショットリスナー1本のラッパー
type firestoreRangeSubscription struct {
	it        *firestore.QuerySnapshotIterator
	fieldPath string
	ch        chan model.RangeSnapshot
	once      sync.Once
}

func (s *firestoreRangeSubscription) Snapshots() <-chan model.RangeSnapshot {
	return s.ch
}

// Unsubscribe リスナーを停止する。冪等
func (s *firestoreRangeSubscription) Unsubscribe() {
	s.once.Do(s.it.Stop)
}

// run リスナーからの配信をRangeSnapshotに変換して流し続ける
func (s *firestoreRangeSubscription) run() {
	defer close(s.ch)

	for {
		qsnap, err := s.it.Next()
		if err != nil {
			// Stop()またはコンテキストキャンセルによる正常終了
			if err == iterator.Done || status.Code(err) == codes.Canceled {
				return
			}
			s.emit(model.RangeSnapshot{Err: fmt.Errorf("Firestoreの範囲購読でエラーが発生しました: %w", err)})
			return
		}

		records, err := s.decodeDocuments(qsnap)
		if err != nil {
			s.emit(model.RangeSnapshot{Err: err})
			return
		}
		s.emit(model.RangeSnapshot{Records: records})
	}
}

func (s *firestoreRangeSubscription) decodeDocuments(qsnap *firestore.QuerySnapshot) ([]model.GeoRecord, error) {
	records := make([]model.GeoRecord, 0)
	for {
		doc, err := qsnap.Documents.Next()
		if err == iterator.Done {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ドキュメントの読み取りに失敗しました: %w", err)
		}

		rec, err := s.decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// decodeDocument ドキュメントの位置フィールドとペイロードをGeoRecordに変換する
func (s *firestoreRangeSubscription) decodeDocument(doc *firestore.DocumentSnapshot) (model.GeoRecord, error) {
	raw, err := doc.DataAt(s.fieldPath)
	if err != nil {
		return model.GeoRecord{}, fmt.Errorf("ドキュメント %s に位置フィールド %s がありません: %w", doc.Ref.ID, s.fieldPath, err)
	}

	field, ok := raw.(map[string]interface{})
	if !ok {
		return model.GeoRecord{}, fmt.Errorf("ドキュメント %s の位置フィールド %s の形式が不正です", doc.Ref.ID, s.fieldPath)
	}
	point, _ := field["geopoint"].(*latlng.LatLng)
	hash, _ := field["geohash"].(string)
	if point == nil || hash == "" {
		return model.GeoRecord{}, fmt.Errorf("ドキュメント %s の位置フィールド %s に geopoint/geohash がありません", doc.Ref.ID, s.fieldPath)
	}

	return model.GeoRecord{
		ID: doc.Ref.ID,
		Point: model.FirePoint{
			Geopoint: model.GeoPoint{Latitude: point.Latitude, Longitude: point.Longitude},
			Geohash:  hash,
		},
		Payload: doc.Data(),
	}, nil
}

// emit 容量1のチャネルに対し、未読の古いスナップショットは最新値で置き換える
func (s *firestoreRangeSubscription) emit(snap model.RangeSnapshot) {
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
