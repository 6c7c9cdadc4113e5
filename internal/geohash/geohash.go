// Package geohash は緯度経度と base32 ジオハッシュ文字列の相互変換を提供する。
// ジオハッシュは経度→緯度の順に区間を二分割しながら1ビットずつ詰めていく
// 方式で、長いハッシュほど小さなセルを表す。プレフィックスが一致する2つの
// ハッシュは同じ親セルに含まれるため、文字列の範囲スキャンがそのまま
// セル内検索になる。
package geohash

import (
	"errors"
	"math"
	"strings"
)

// Base32 ジオハッシュで使用する32文字のアルファベット（a, i, l, o は含まない）
const Base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

const (
	// MinPrecision / MaxPrecision はハッシュ長の有効範囲
	MinPrecision = 1
	MaxPrecision = 18

	// StorePrecision は書き込み時に永続化するハッシュ長（約4.8mセル）。
	// クエリ時の精度とは独立した設計上の固定値。
	StorePrecision = 9
)

var (
	// ErrInvalidEncoding は不正なジオハッシュ文字列に対して返される
	ErrInvalidEncoding = errors.New("不正なジオハッシュ文字列です")
	// ErrInvalidCoordinates は範囲外または非数の緯度経度に対して返される
	ErrInvalidCoordinates = errors.New("緯度は-90から90、経度は-180から180の範囲で指定してください")
	// ErrInvalidPrecision は範囲外のハッシュ長に対して返される
	ErrInvalidPrecision = errors.New("ジオハッシュの長さは1から18の範囲で指定してください")
)

// BoundingBox ジオハッシュが表す矩形セル。保存はせず必要な時に再計算する。
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// ValidateCoordinates 緯度経度が有効な範囲に収まっているかチェックする
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Encode 緯度経度を指定長のジオハッシュ文字列に変換する。
// 経度から始めて交互に区間を二分割し、5ビットごとに1文字を出力する。
func Encode(lat, lng float64, precision int) (string, error) {
	if err := ValidateCoordinates(lat, lng); err != nil {
		return "", err
	}
	if precision < MinPrecision || precision > MaxPrecision {
		return "", ErrInvalidPrecision
	}
	return encodeRaw(lat, lng, precision), nil
}

// encodeRaw は範囲チェックなしの二分割エンコード本体。範囲外の座標は
// 端のセルに吸い込まれる（近傍計算がこの挙動に依存している）。
func encodeRaw(lat, lng float64, precision int) string {
	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	var hash strings.Builder
	isEven := true
	bit := 0
	ch := 0

	for hash.Len() < precision {
		if isEven {
			mid := (minLng + maxLng) / 2
			if lng >= mid {
				ch |= 1 << (4 - bit)
				minLng = mid
			} else {
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		isEven = !isEven
		bit++
		if bit == 5 {
			hash.WriteByte(Base32[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String()
}

// Decode ジオハッシュからセル中心の緯度経度と軸ごとの誤差（セル半幅）を復元する
func Decode(hash string) (lat, lng, latErr, lngErr float64, err error) {
	box, err := DecodeBoundingBox(hash)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	lat = (box.MinLat + box.MaxLat) / 2
	lng = (box.MinLng + box.MaxLng) / 2
	latErr = (box.MaxLat - box.MinLat) / 2
	lngErr = (box.MaxLng - box.MinLng) / 2
	return lat, lng, latErr, lngErr, nil
}

// DecodeBoundingBox ジオハッシュが表す矩形セルを復元する。
// エンコードと同じ経度→緯度の交互順で1文字5ビットずつ区間を絞り込む。
func DecodeBoundingBox(hash string) (BoundingBox, error) {
	if hash == "" {
		return BoundingBox{}, ErrInvalidEncoding
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0
	isEven := true

	for i := 0; i < len(hash); i++ {
		cd := strings.IndexByte(Base32, hash[i])
		if cd < 0 {
			return BoundingBox{}, ErrInvalidEncoding
		}
		for j := 4; j >= 0; j-- {
			bit := (cd >> j) & 1
			if isEven {
				mid := (minLng + maxLng) / 2
				if bit == 1 {
					minLng = mid
				} else {
					maxLng = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if bit == 1 {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			isEven = !isEven
		}
	}

	return BoundingBox{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}, nil
}
