package repository

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"GeoWatch-App/internal/domain/model"
)

// PointToOrb model.GeoPoint を orb.Point に変換（orbは [lng, lat] 順）
func PointToOrb(p model.GeoPoint) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// ResultsToFeatureCollection within検索のスナップショットをGeoJSONの
// FeatureCollectionに変換する。距離(km)・方位・ジオハッシュと
// レコードのペイロードをそのままpropertiesに載せる
func ResultsToFeatureCollection(results []model.QueryResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, res := range results {
		feature := geojson.NewFeature(PointToOrb(res.Record.Point.Geopoint))
		feature.ID = res.Record.ID
		feature.Properties = geojson.Properties{
			"id":       res.Record.ID,
			"distance": res.Distance,
			"bearing":  res.Bearing,
			"geohash":  res.Record.Point.Geohash,
		}
		for k, v := range res.Record.Payload {
			if _, reserved := feature.Properties[k]; !reserved {
				feature.Properties[k] = v
			}
		}
		fc.Append(feature)
	}

	return fc
}

// RecordToFeature 単一レコードをGeoJSON Featureに変換する
func RecordToFeature(record model.GeoRecord) *geojson.Feature {
	feature := geojson.NewFeature(PointToOrb(record.Point.Geopoint))
	feature.ID = record.ID
	feature.Properties = geojson.Properties{
		"id":      record.ID,
		"geohash": record.Point.Geohash,
	}
	for k, v := range record.Payload {
		if _, reserved := feature.Properties[k]; !reserved {
			feature.Properties[k] = v
		}
	}
	return feature
}
