// Package geo は球面上の距離・方位計算と距離単位の変換を提供する。
// すべて純粋関数で、内部の計算は常にキロメートル基準。
package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters 平均地球半径（メートル）
const EarthRadiusMeters = 6371008.8

// Unit 距離の表示単位
type Unit string

const (
	Meters     Unit = "m"
	Kilometers Unit = "km"
	Miles      Unit = "mi"
	Feet       Unit = "ft"
)

// metersPerUnit 単位→メートルの固定換算表
var metersPerUnit = map[Unit]float64{
	Meters:     1,
	Kilometers: 1000,
	Miles:      1609.34,
	Feet:       0.3048,
}

// ErrUnknownUnit は未対応の距離単位に対して返される
var ErrUnknownUnit = errors.New("未対応の距離単位です")

// ValidUnit 単位が換算表に存在するかチェックする
func ValidUnit(unit Unit) bool {
	_, ok := metersPerUnit[unit]
	return ok
}

// Distance 2点間の大圏距離（km）をHaversine公式で計算する。
// 引数を入れ替えても結果は同じ（対称）。
func Distance(aLat, aLng, bLat, bLng float64) float64 {
	aLatRad := toRadians(aLat)
	bLatRad := toRadians(bLat)
	deltaLat := toRadians(bLat - aLat)
	deltaLng := toRadians(bLng - aLng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(aLatRad)*math.Cos(bLatRad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c / 1000
}

// DistanceIn km単位の距離を指定単位に換算する
func DistanceIn(km float64, unit Unit) (float64, error) {
	factor, ok := metersPerUnit[unit]
	if !ok {
		return 0, ErrUnknownUnit
	}
	return km * 1000 / factor, nil
}

// Bearing A地点から見たB地点の初期方位（度）を返す。
// 0°が北、時計回りが正で、値域は(-180, 180]。
func Bearing(aLat, aLng, bLat, bLng float64) float64 {
	aLatRad := toRadians(aLat)
	bLatRad := toRadians(bLat)
	deltaLng := toRadians(bLng - aLng)

	y := math.Sin(deltaLng) * math.Cos(bLatRad)
	x := math.Cos(aLatRad)*math.Sin(bLatRad) -
		math.Sin(aLatRad)*math.Cos(bLatRad)*math.Cos(deltaLng)

	return normalizeDegrees(toDegrees(math.Atan2(y, x)))
}

// FinalBearing A地点からB地点へ進んだときの到着方位（度）を返す。
// 逆向きの初期方位を180°反転した値に等しい。
func FinalBearing(aLat, aLng, bLat, bLng float64) float64 {
	return normalizeDegrees(Bearing(bLat, bLng, aLat, aLng) + 180)
}

// normalizeDegrees 角度を(-180, 180]に正規化する
func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
