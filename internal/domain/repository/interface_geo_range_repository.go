package repository

import (
	"context"

	"GeoWatch-App/internal/domain/model"
)

// GeoRangeRepository ソート済みインデックスに対するプレフィックス範囲の
// ライブ購読を提供する外部ストアのインターフェース。
// 1つの購読はキー範囲 [startKey, endKey) にマッチする全レコードの
// スナップショットを、対象データが変化するたびに丸ごと配信する（差分ではない）。
type GeoRangeRepository interface {
	// RangeSubscribe 指定フィールドのキー範囲に対するライブ購読を開始する。
	// ctxのキャンセルでも購読は停止する。
	RangeSubscribe(ctx context.Context, fieldPath, startKey, endKey string) (RangeSubscription, error)
}

// RangeSubscription 1本のライブ範囲購読
type RangeSubscription interface {
	// Snapshots スナップショットの配信チャネル。購読停止で閉じられる
	Snapshots() <-chan model.RangeSnapshot
	// Unsubscribe 購読を同期的に停止する。冪等で、停止後の配信はない
	Unsubscribe()
}

// GeoWriteRepository レコードの書き込み面。
// fieldPathは位置フィールド {geopoint, geohash} を格納するフィールド名。
type GeoWriteRepository interface {
	SaveRecord(ctx context.Context, fieldPath string, record model.GeoRecord) error
	DeleteRecord(ctx context.Context, id string) error
}

// GeoStoreRepository 読み書き両面を備えたストア実装
type GeoStoreRepository interface {
	GeoRangeRepository
	GeoWriteRepository
}
