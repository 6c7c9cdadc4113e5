package geohash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecisionForRadiusTable(t *testing.T) {
	cases := []struct {
		radiusKm float64
		want     int
	}{
		{0.001, 9},
		{0.00477, 9},
		{0.005, 8},
		{0.0382, 8},
		{0.1, 7},
		{1.0, 6},
		{1.22, 6},
		{1.3, 5},
		{4.89, 5},
		{10, 4},
		{39.1, 4},
		{100, 3},
		{1000, 2},
		{1250, 2},
		{5000, 1},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, PrecisionForRadius(c.radiusKm), "radius=%vkm", c.radiusKm)
	}
}

// 半径が大きくなるほどハッシュ長は単調に短くなる
func TestPrecisionForRadiusMonotonic(t *testing.T) {
	prev := 10
	for radius := 0.001; radius < 20000; radius *= 1.5 {
		p := PrecisionForRadius(radius)
		assert.LessOrEqual(t, p, prev, "radius=%vkm", radius)
		assert.GreaterOrEqual(t, p, 1)
		prev = p
	}
}
