package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoWatch-App/internal/domain/model"
	"GeoWatch-App/internal/domain/service"
	repoImpl "GeoWatch-App/internal/repository"
	"GeoWatch-App/internal/usecase"
)

func newTestRouter(t *testing.T) (*gin.Engine, *repoImpl.MemoryGeoRangeRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repoImpl.NewMemoryGeoRangeRepository()
	uc := usecase.NewGeoQueryUseCase(service.NewRadiusQueryService(repo), repo, usecase.DefaultFieldPath)
	h := NewGeoQueryHandler(uc)

	router := gin.New()
	router.POST("/api/points", h.SavePoint)
	router.DELETE("/api/points/:id", h.DeletePoint)
	router.GET("/api/query/within", h.Within)
	return router, repo
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSavePointEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	lat, lng := 35.6812, 139.7671
	w := performJSON(t, router, http.MethodPost, "/api/points", gin.H{
		"id":        "tokyo-station",
		"latitude":  lat,
		"longitude": lng,
		"payload":   gin.H{"name": "東京駅"},
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var record model.GeoRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "tokyo-station", record.ID)
	assert.Len(t, record.Point.Geohash, 9)
	assert.Equal(t, "東京駅", record.Payload["name"])
}

func TestSavePointEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	// 緯度欠落
	w := performJSON(t, router, http.MethodPost, "/api/points", gin.H{"longitude": 139.7})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 範囲外の緯度
	w = performJSON(t, router, http.MethodPost, "/api/points", gin.H{"latitude": 91.0, "longitude": 0.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeletePointEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performJSON(t, router, http.MethodPost, "/api/points", gin.H{
		"id":        "target",
		"latitude":  10.0,
		"longitude": 10.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = performJSON(t, router, http.MethodDelete, "/api/points/target", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWithinEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performJSON(t, router, http.MethodPost, "/api/points", gin.H{
		"id": "near", "latitude": 0.005, "longitude": 0.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = performJSON(t, router, http.MethodPost, "/api/points", gin.H{
		"id": "far", "latitude": 5.0, "longitude": 5.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = performJSON(t, router, http.MethodGet, "/api/query/within?latitude=0&longitude=0&radius_km=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count   int                 `json:"count"`
		Results []model.QueryResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "near", resp.Results[0].Record.ID)
	assert.InDelta(t, 0.556, resp.Results[0].Distance, 0.01)
}

func TestWithinEndpointGeoJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performJSON(t, router, http.MethodPost, "/api/points", gin.H{
		"id": "near", "latitude": 0.005, "longitude": 0.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = performJSON(t, router, http.MethodGet, "/api/query/within?latitude=0&longitude=0&radius_km=10&format=geojson", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         interface{}            `json:"id"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "near", fc.Features[0].Properties["id"])
}

func TestWithinEndpointInvalidParams(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performJSON(t, router, http.MethodGet, "/api/query/within?latitude=abc&longitude=0&radius_km=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performJSON(t, router, http.MethodGet, "/api/query/within?latitude=0&longitude=0&radius_km=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performJSON(t, router, http.MethodGet, "/api/query/within?latitude=0&longitude=0&radius_km=1&units=parsec", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
