package geohash

// neighborOffsets 北から時計回りの8方位（緯度符号, 経度符号）
var neighborOffsets = [8][2]float64{
	{1, 0},   // N
	{1, 1},   // NE
	{0, 1},   // E
	{-1, 1},  // SE
	{-1, 0},  // S
	{-1, -1}, // SW
	{0, -1},  // W
	{1, -1},  // NW
}

// Neighbors 同じ長さの隣接セル8個を北から時計回り（N, NE, E, SE, S, SW, W, NW）で返す。
// セル中心を1セル分だけずらした点を同じ長さで再エンコードする近似方式を
// 採用している。±90°/±180°を越えた摂動点の折り返しは正規化しないため、
// 極や日付変更線の近傍では隣接セルが重複・退化することがある。
// 呼び出し側は必要に応じて重複を除去すること。
func Neighbors(hash string) ([]string, error) {
	lat, lng, latErr, lngErr, err := Decode(hash)
	if err != nil {
		return nil, err
	}

	// Decodeの誤差はセル半幅なので、2倍すると1セル分の移動量になる
	cellHeight := latErr * 2
	cellWidth := lngErr * 2

	neighbors := make([]string, 0, len(neighborOffsets))
	for _, offset := range neighborOffsets {
		neighborLat := lat + offset[0]*cellHeight
		neighborLng := lng + offset[1]*cellWidth
		neighbors = append(neighbors, encodeRaw(neighborLat, neighborLng, len(hash)))
	}

	return neighbors, nil
}
