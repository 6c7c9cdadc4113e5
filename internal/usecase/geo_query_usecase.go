package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"GeoWatch-App/internal/domain/model"
	"GeoWatch-App/internal/domain/repository"
	"GeoWatch-App/internal/domain/service"
	"GeoWatch-App/internal/geo"
	"GeoWatch-App/internal/geohash"
)

// DefaultFieldPath レコード内の位置フィールドのデフォルト名
const DefaultFieldPath = "position"

// GeoQueryUseCase 位置レコードの登録とライブ近傍検索の公開サーフェス
type GeoQueryUseCase interface {
	// MakePoint 固定精度のジオハッシュを付与したFirePointを作成する
	MakePoint(lat, lng float64) (model.FirePoint, error)

	// SavePoint 位置レコードを保存する。idが空ならUUIDを採番する
	SavePoint(ctx context.Context, id string, lat, lng float64, payload map[string]interface{}) (model.GeoRecord, error)

	// DeletePoint 位置レコードを削除する
	DeletePoint(ctx context.Context, id string) error

	// Distance 2点間の大圏距離を指定単位で返す
	Distance(a, b model.FirePoint, unit geo.Unit) (float64, error)

	// Bearing aから見たbの初期方位（度、0°=北、時計回り正）
	Bearing(a, b model.FirePoint) float64

	// Within ライブ近傍検索を開始する。停止は戻り値のUnsubscribe()で行う
	Within(ctx context.Context, center model.FirePoint, radiusKm float64, opts service.QueryOptions) (*service.WithinSubscription, error)

	// WithinOnce 最初の統合スナップショットだけを取得して購読を閉じる
	WithinOnce(ctx context.Context, center model.FirePoint, radiusKm float64, opts service.QueryOptions) ([]model.QueryResult, error)
}

// geoQueryUseCaseImpl はGeoQueryUseCaseの実装
type geoQueryUseCaseImpl struct {
	radiusService *service.RadiusQueryService
	store         repository.GeoStoreRepository
	fieldPath     string
}

// NewGeoQueryUseCase は新しいGeoQueryUseCaseインスタンスを作成する。
// fieldPathが空の場合はDefaultFieldPathを使用する
func NewGeoQueryUseCase(radiusService *service.RadiusQueryService, store repository.GeoStoreRepository, fieldPath string) GeoQueryUseCase {
	if fieldPath == "" {
		fieldPath = DefaultFieldPath
	}
	return &geoQueryUseCaseImpl{
		radiusService: radiusService,
		store:         store,
		fieldPath:     fieldPath,
	}
}

func (u *geoQueryUseCaseImpl) MakePoint(lat, lng float64) (model.FirePoint, error) {
	hash, err := geohash.Encode(lat, lng, geohash.StorePrecision)
	if err != nil {
		return model.FirePoint{}, err
	}
	return model.FirePoint{
		Geopoint: model.GeoPoint{Latitude: lat, Longitude: lng},
		Geohash:  hash,
	}, nil
}

func (u *geoQueryUseCaseImpl) SavePoint(ctx context.Context, id string, lat, lng float64, payload map[string]interface{}) (model.GeoRecord, error) {
	point, err := u.MakePoint(lat, lng)
	if err != nil {
		return model.GeoRecord{}, err
	}
	if id == "" {
		id = uuid.New().String()
	}

	record := model.GeoRecord{ID: id, Point: point, Payload: payload}
	if err := u.store.SaveRecord(ctx, u.fieldPath, record); err != nil {
		return model.GeoRecord{}, fmt.Errorf("位置レコードの保存に失敗: %w", err)
	}
	return record, nil
}

func (u *geoQueryUseCaseImpl) DeletePoint(ctx context.Context, id string) error {
	if err := u.store.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("位置レコードの削除に失敗: %w", err)
	}
	return nil
}

func (u *geoQueryUseCaseImpl) Distance(a, b model.FirePoint, unit geo.Unit) (float64, error) {
	km := geo.Distance(a.Geopoint.Latitude, a.Geopoint.Longitude, b.Geopoint.Latitude, b.Geopoint.Longitude)
	return geo.DistanceIn(km, unit)
}

func (u *geoQueryUseCaseImpl) Bearing(a, b model.FirePoint) float64 {
	return geo.Bearing(a.Geopoint.Latitude, a.Geopoint.Longitude, b.Geopoint.Latitude, b.Geopoint.Longitude)
}

func (u *geoQueryUseCaseImpl) Within(ctx context.Context, center model.FirePoint, radiusKm float64, opts service.QueryOptions) (*service.WithinSubscription, error) {
	return u.radiusService.Within(ctx, center, radiusKm, u.fieldPath, opts)
}

func (u *geoQueryUseCaseImpl) WithinOnce(ctx context.Context, center model.FirePoint, radiusKm float64, opts service.QueryOptions) ([]model.QueryResult, error) {
	sub, err := u.radiusService.Within(ctx, center, radiusKm, u.fieldPath, opts)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			if err := sub.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("検索が結果を返さずに終了しました")
		}
		if snap.Err != nil {
			return nil, snap.Err
		}
		return snap.Results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
