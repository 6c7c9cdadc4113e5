package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"GeoWatch-App/internal/domain/model"
	"GeoWatch-App/internal/domain/repository"
	"GeoWatch-App/internal/geo"
	"GeoWatch-App/internal/geohash"
)

// ErrInvalidRadius は非正または非有限の検索半径に対して返される
var ErrInvalidRadius = errors.New("検索半径は正の有限値で指定してください")

const (
	// radiusBufferFactor セル矩形と検索円の食い違い、および境界付近の
	// 浮動小数の丸めを吸収するための半径の上乗せ係数
	radiusBufferFactor = 1.02

	// rangeSentinel base32アルファベットの全文字より後にソートされる番兵。
	// [hash, hash+"~") でちょうどそのプレフィックスだけをスキャンできる
	rangeSentinel = "~"
)

// QueryOptions within検索の呼び出しごとのオプション。
// ゼロ値は {Units: km, Log: false} として扱われる。
type QueryOptions struct {
	// Units 診断ログに表示する距離の単位。結果の距離は常にkm
	Units geo.Unit
	// Log 診断ログ（セル数・ヒット数・所要時間）の出力を有効にする
	Log bool
}

// RadiusQueryService 2次元の近傍検索を最大9本の1次元プレフィックス範囲購読に
// 展開し、combine-latest方式で合流・精密フィルタ・整列して配信する検索エンジン
type RadiusQueryService struct {
	repo repository.GeoRangeRepository
}

// NewRadiusQueryService は新しいRadiusQueryServiceインスタンスを作成する
func NewRadiusQueryService(repo repository.GeoRangeRepository) *RadiusQueryService {
	return &RadiusQueryService{repo: repo}
}

// Within 中心と半径(km)からライブ検索を開始する。
// 返される購読は対象データが変化するたびに、距離昇順に整列した
// 全件スナップショットを配信し続ける。停止はUnsubscribe()で行う。
func (s *RadiusQueryService) Within(ctx context.Context, center model.FirePoint, radiusKm float64, fieldPath string, opts QueryOptions) (*WithinSubscription, error) {
	if radiusKm <= 0 || math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil, ErrInvalidRadius
	}
	if err := geohash.ValidateCoordinates(center.Geopoint.Latitude, center.Geopoint.Longitude); err != nil {
		return nil, err
	}
	if opts.Units == "" {
		opts.Units = geo.Kilometers
	}
	if !geo.ValidUnit(opts.Units) {
		return nil, geo.ErrUnknownUnit
	}

	cells, precision, err := s.coveringCells(center, radiusKm)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithCancel(ctx)
	subs := make([]repository.RangeSubscription, 0, len(cells))
	for _, cell := range cells {
		sub, err := s.repo.RangeSubscribe(qctx, fieldPath, cell, cell+rangeSentinel)
		if err != nil {
			cancel()
			for _, opened := range subs {
				opened.Unsubscribe()
			}
			return nil, fmt.Errorf("セル %s の範囲購読の開始に失敗: %w", cell, err)
		}
		subs = append(subs, sub)
	}

	w := newWithinSubscription(uuid.New().String(), cancel, subs)

	mux := make(chan cellEvent)
	for i, sub := range subs {
		go forwardCell(qctx, i, sub, mux)
	}
	go s.runMerge(qctx, w, center.Geopoint, radiusKm*radiusBufferFactor, len(cells), mux, opts)

	if opts.Log {
		log.Printf("🔍 [%s] within検索開始: 半径%.4gkm / 精度%d / %dセル", w.ID(), radiusKm, precision, len(cells))
	}
	return w, nil
}

// coveringCells 検索円を覆うセル集合（中心セル+近傍8セル、重複除去済み）を計算する
func (s *RadiusQueryService) coveringCells(center model.FirePoint, radiusKm float64) ([]string, int, error) {
	precision := geohash.PrecisionForRadius(radiusKm)

	centerHash := center.Geohash
	if centerHash == "" {
		var err error
		centerHash, err = geohash.Encode(center.Geopoint.Latitude, center.Geopoint.Longitude, geohash.StorePrecision)
		if err != nil {
			return nil, 0, err
		}
	}
	if len(centerHash) > precision {
		centerHash = centerHash[:precision]
	}

	neighbors, err := geohash.Neighbors(centerHash)
	if err != nil {
		return nil, 0, fmt.Errorf("中心セルの近傍計算に失敗: %w", err)
	}

	// 極付近では近傍セルが退化して重複するため、集合として扱う
	cells := make([]string, 0, 1+len(neighbors))
	seen := make(map[string]bool, 1+len(neighbors))
	for _, cell := range append([]string{centerHash}, neighbors...) {
		if !seen[cell] {
			seen[cell] = true
			cells = append(cells, cell)
		}
	}
	return cells, precision, nil
}

// cellEvent 1セル分の範囲購読からの配信
type cellEvent struct {
	idx  int
	snap model.RangeSnapshot
}

// forwardCell セル購読の配信を合流点のチャネルに転送する
func forwardCell(ctx context.Context, idx int, sub repository.RangeSubscription, mux chan<- cellEvent) {
	for snap := range sub.Snapshots() {
		select {
		case mux <- cellEvent{idx: idx, snap: snap}:
		case <-ctx.Done():
			return
		}
	}
}

// runMerge combine-latest方式の合流点。セルごとの最新値スロットを
// このゴルーチンだけが所有するため、合成処理の再入は直列化される。
// 全セルの初回スナップショットが揃ってから最初の統合配信を行う。
func (s *RadiusQueryService) runMerge(ctx context.Context, w *WithinSubscription, center model.GeoPoint, radiusBufferKm float64, cellCount int, mux <-chan cellEvent, opts QueryOptions) {
	latest := make([][]model.GeoRecord, cellCount)
	seen := make([]bool, cellCount)
	seenCount := 0

	for {
		select {
		case <-ctx.Done():
			w.Unsubscribe()
			return
		case ev := <-mux:
			if ctx.Err() != nil {
				w.Unsubscribe()
				return
			}
			if ev.snap.Err != nil {
				// 1セルの失敗は検索全体の失敗。部分結果は返さない
				w.fail(fmt.Errorf("範囲購読がエラーを報告しました: %w", ev.snap.Err))
				w.Unsubscribe()
				return
			}

			latest[ev.idx] = ev.snap.Records
			if !seen[ev.idx] {
				seen[ev.idx] = true
				seenCount++
			}
			if seenCount < cellCount {
				continue
			}

			started := time.Now()
			results := buildResults(center, radiusBufferKm, latest)
			w.publish(results)
			if opts.Log {
				logEmission(w.ID(), cellCount, len(results), radiusBufferKm, opts.Units, time.Since(started))
			}
		}
	}
}

// buildResults 全セルの最新値を平坦化し、真のHaversine距離でフィルタして
// 距離・方位を付与し、距離昇順に整列する
func buildResults(center model.GeoPoint, radiusBufferKm float64, cells [][]model.GeoRecord) []model.QueryResult {
	results := make([]model.QueryResult, 0)
	for _, records := range cells {
		for _, rec := range records {
			p := rec.Point.Geopoint
			d := geo.Distance(center.Latitude, center.Longitude, p.Latitude, p.Longitude)
			if d > radiusBufferKm {
				// セル矩形の角に入っただけの偽陽性を除外
				continue
			}
			results = append(results, model.QueryResult{
				Record:   rec,
				Distance: d,
				Bearing:  geo.Bearing(center.Latitude, center.Longitude, p.Latitude, p.Longitude),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results
}

// logEmission 診断ログの出力。失敗してもパイプラインには影響させない
func logEmission(id string, cellCount, hits int, radiusBufferKm float64, unit geo.Unit, elapsed time.Duration) {
	radius, err := geo.DistanceIn(radiusBufferKm, unit)
	if err != nil {
		return
	}
	log.Printf("📡 [%s] %dセル / %d件ヒット / %.2fms (バッファ半径 %.4g%s)",
		id, cellCount, hits, float64(elapsed.Microseconds())/1000, radius, unit)
}
