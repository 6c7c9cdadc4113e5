package geohash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeighborsShape(t *testing.T) {
	center := "ezs42"
	neighbors, err := Neighbors(center)
	require.NoError(t, err)
	require.Len(t, neighbors, 8)

	seen := map[string]bool{center: true}
	for _, n := range neighbors {
		assert.Len(t, n, len(center))
		assert.False(t, seen[n], "隣接セルが重複: %s", n)
		seen[n] = true
	}
}

// 各隣接セルの中心が、元のセル中心から期待する方位に1セル分ずれている
func TestNeighborsAdjacency(t *testing.T) {
	center := "xn76urw" // 東京駅付近、精度7
	lat, lng, latErr, lngErr, err := Decode(center)
	require.NoError(t, err)

	cellHeight := latErr * 2
	cellWidth := lngErr * 2

	neighbors, err := Neighbors(center)
	require.NoError(t, err)
	require.Len(t, neighbors, 8)

	// 北から時計回り: N, NE, E, SE, S, SW, W, NW
	expected := [8][2]float64{
		{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	}

	for i, n := range neighbors {
		nLat, nLng, _, _, err := Decode(n)
		require.NoError(t, err)
		assert.InDelta(t, lat+expected[i][0]*cellHeight, nLat, latErr/10, "方位 %d", i)
		assert.InDelta(t, lng+expected[i][1]*cellWidth, nLng, lngErr/10, "方位 %d", i)
	}
}

func TestNeighborsInvalidHash(t *testing.T) {
	_, err := Neighbors("")
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	_, err = Neighbors("ez!42")
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}
