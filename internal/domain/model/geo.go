package model

// GeoPoint 緯度経度を表す不変の値型
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// FirePoint 座標と書き込み時に固定精度で計算したジオハッシュの組。
// ストアに永続化されるインデックスフィールドで、既存データとの互換のため
// {geopoint, geohash} というフィールド構成を維持する。
type FirePoint struct {
	Geopoint GeoPoint `json:"geopoint"`
	Geohash  string   `json:"geohash"`
}

// GeoRecord ストア上の1レコード。位置フィールドと不透明なペイロードを持つ
type GeoRecord struct {
	ID      string                 `json:"id"`
	Point   FirePoint              `json:"point"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// QueryResult 検索中心からの距離(km)と方位(度)を付与した検索結果1件
type QueryResult struct {
	Record   GeoRecord `json:"record"`
	Distance float64   `json:"distance"`
	Bearing  float64   `json:"bearing"`
}

// RangeSnapshot 範囲購読1回分の全件スナップショット。
// Errが非nilの場合は終端イベントで、以降の配信はない。
type RangeSnapshot struct {
	Records []GeoRecord
	Err     error
}

// WithinSnapshot within検索の統合スナップショット。距離昇順に整列済み。
// Errが非nilの場合は終端イベントで、以降の配信はない。
type WithinSnapshot struct {
	Results []QueryResult `json:"results"`
	Err     error         `json:"-"`
}
