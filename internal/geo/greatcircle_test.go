package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKnownValues(t *testing.T) {
	// 赤道上の経度1度 = 2π * 6371.0088 / 360 ≈ 111.195 km
	assert.InDelta(t, 111.195, Distance(0, 0, 0, 1), 0.001)

	// 同一地点は距離ゼロ
	assert.Equal(t, 0.0, Distance(35.6812, 139.7671, 35.6812, 139.7671))

	// 東京駅〜大阪駅はおよそ400km
	d := Distance(35.6812, 139.7671, 34.7025, 135.4959)
	assert.InDelta(t, 400, d, 10)
}

func TestDistanceSymmetric(t *testing.T) {
	pairs := [][4]float64{
		{35.6812, 139.7671, 34.7025, 135.4959},
		{51.4700, -0.4543, 40.6413, -73.7781},
		{-33.8688, 151.2093, 64.1466, -21.9426},
		{0, 179.9, 0, -179.9},
	}

	for _, p := range pairs {
		ab := Distance(p[0], p[1], p[2], p[3])
		ba := Distance(p[2], p[3], p[0], p[1])
		assert.InEpsilon(t, ab, ba, 1e-9)
	}
}

func TestBearingCardinalDirections(t *testing.T) {
	assert.InDelta(t, 0, Bearing(0, 0, 1, 0), 1e-9)    // 真北
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 1e-9)   // 真東
	assert.InDelta(t, 180, Bearing(0, 0, -1, 0), 1e-9) // 真南
	assert.InDelta(t, -90, Bearing(0, 0, 0, -1), 1e-9) // 真西
}

// 到着方位 = 逆向きの初期方位を180°反転したもの
func TestFinalBearingRelation(t *testing.T) {
	pairs := [][4]float64{
		{35.6812, 139.7671, 34.7025, 135.4959},
		{51.4700, -0.4543, 40.6413, -73.7781},
		{10, 20, -30, 100},
	}

	for _, p := range pairs {
		final := FinalBearing(p[0], p[1], p[2], p[3])
		reversed := math.Mod(Bearing(p[2], p[3], p[0], p[1])+180, 360)
		if reversed > 180 {
			reversed -= 360
		}
		assert.InDelta(t, reversed, final, 1e-9)
		assert.Greater(t, final, -180.0)
		assert.LessOrEqual(t, final, 180.0)
	}
}

func TestDistanceIn(t *testing.T) {
	km, err := DistanceIn(1.5, Kilometers)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, km, 1e-12)

	m, err := DistanceIn(1.5, Meters)
	require.NoError(t, err)
	assert.InDelta(t, 1500, m, 1e-9)

	mi, err := DistanceIn(1.60934, Miles)
	require.NoError(t, err)
	assert.InDelta(t, 1, mi, 1e-9)

	ft, err := DistanceIn(0.0003048, Feet)
	require.NoError(t, err)
	assert.InDelta(t, 1, ft, 1e-9)

	_, err = DistanceIn(1, Unit("furlong"))
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestValidUnit(t *testing.T) {
	assert.True(t, ValidUnit(Kilometers))
	assert.True(t, ValidUnit(Feet))
	assert.False(t, ValidUnit(Unit("")))
	assert.False(t, ValidUnit(Unit("pc")))
}
