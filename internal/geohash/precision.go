package geohash

// precisionBreakpoint 検索半径(km)とハッシュ長の対応
type precisionBreakpoint struct {
	maxRadiusKm float64
	precision   int
}

// precisionTable 半径からハッシュ長を引くための固定テーブル。
// 半径よりひと回り小さいセルを選ぶことで、中心セル+近傍8セルの3x3グリッドが
// 検索円を確実に覆いつつ、範囲スキャンの本数を最小に抑える。
// 実行時に導出せず固定値にしておくことで挙動を再現可能にしている。
var precisionTable = []precisionBreakpoint{
	{0.00477, 9},
	{0.0382, 8},
	{0.153, 7},
	{1.22, 6},
	{4.89, 5},
	{39.1, 4},
	{156, 3},
	{1250, 2},
}

// PrecisionForRadius 検索半径(km)に対応するジオハッシュ長(1〜9)を返す。
// 半径が大きくなるほど返る長さは単調に短くなる。
func PrecisionForRadius(radiusKm float64) int {
	for _, bp := range precisionTable {
		if radiusKm <= bp.maxRadiusKm {
			return bp.precision
		}
	}
	return 1
}
