package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"GeoWatch-App/internal/domain/model"
	"GeoWatch-App/internal/domain/service"
	"GeoWatch-App/internal/geo"
	"GeoWatch-App/internal/geohash"
	repoImpl "GeoWatch-App/internal/repository"
	"GeoWatch-App/internal/usecase"
)

// GeoQueryHandler 位置レコードとライブ近傍検索のHTTPハンドラー
type GeoQueryHandler struct {
	useCase usecase.GeoQueryUseCase
}

// NewGeoQueryHandler は新しいGeoQueryHandlerインスタンスを作成する
func NewGeoQueryHandler(useCase usecase.GeoQueryUseCase) *GeoQueryHandler {
	return &GeoQueryHandler{useCase: useCase}
}

// SavePointRequest POST /api/points のリクエストボディ
type SavePointRequest struct {
	ID        string                 `json:"id"`
	Latitude  *float64               `json:"latitude"`
	Longitude *float64               `json:"longitude"`
	Payload   map[string]interface{} `json:"payload"`
}

// SavePoint は位置レコードを登録するエンドポイント
// POST /api/points
func (h *GeoQueryHandler) SavePoint(c *gin.Context) {
	var req SavePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "リクエストの形式が正しくありません",
			"details": err.Error(),
		})
		return
	}

	if err := validateSavePointRequest(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "バリデーションエラー",
			"details": err.Error(),
		})
		return
	}

	record, err := h.useCase.SavePoint(c.Request.Context(), req.ID, *req.Latitude, *req.Longitude, req.Payload)
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":   "位置レコードの保存に失敗しました",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// DeletePoint は位置レコードを削除するエンドポイント
// DELETE /api/points/:id
func (h *GeoQueryHandler) DeletePoint(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idが指定されていません"})
		return
	}

	if err := h.useCase.DeletePoint(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "位置レコードの削除に失敗しました",
			"details": err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Within は近傍検索の現時点のスナップショットを返すエンドポイント
// GET /api/query/within?latitude=&longitude=&radius_km=&units=&log=&format=
func (h *GeoQueryHandler) Within(c *gin.Context) {
	center, radiusKm, opts, err := h.parseWithinQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "バリデーションエラー",
			"details": err.Error(),
		})
		return
	}

	results, err := h.useCase.WithinOnce(c.Request.Context(), center, radiusKm, opts)
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":   "近傍検索に失敗しました",
			"details": err.Error(),
		})
		return
	}

	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, repoImpl.ResultsToFeatureCollection(results))
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "results": results})
}

// WithinStream は近傍検索の統合スナップショットをSSEで配信し続けるエンドポイント。
// クライアント切断で購読ごと停止する
// GET /api/query/within/stream?latitude=&longitude=&radius_km=&units=&log=
func (h *GeoQueryHandler) WithinStream(c *gin.Context) {
	center, radiusKm, opts, err := h.parseWithinQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "バリデーションエラー",
			"details": err.Error(),
		})
		return
	}

	sub, err := h.useCase.Within(c.Request.Context(), center, radiusKm, opts)
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":   "近傍検索の開始に失敗しました",
			"details": err.Error(),
		})
		return
	}
	defer sub.Unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ch := sub.Snapshots()
	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-ch:
			if !ok {
				return false
			}
			if snap.Err != nil {
				c.SSEvent("error", gin.H{"error": snap.Err.Error()})
				return false
			}
			c.SSEvent("snapshot", gin.H{"count": len(snap.Results), "results": snap.Results})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// parseWithinQuery within系エンドポイント共通のクエリパラメータ解析
func (h *GeoQueryHandler) parseWithinQuery(c *gin.Context) (model.FirePoint, float64, service.QueryOptions, error) {
	lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
	if err != nil {
		return model.FirePoint{}, 0, service.QueryOptions{}, &ValidationError{Field: "latitude", Message: "数値で指定してください"}
	}
	lng, err := strconv.ParseFloat(c.Query("longitude"), 64)
	if err != nil {
		return model.FirePoint{}, 0, service.QueryOptions{}, &ValidationError{Field: "longitude", Message: "数値で指定してください"}
	}
	radiusKm, err := strconv.ParseFloat(c.Query("radius_km"), 64)
	if err != nil {
		return model.FirePoint{}, 0, service.QueryOptions{}, &ValidationError{Field: "radius_km", Message: "数値で指定してください"}
	}

	center, err := h.useCase.MakePoint(lat, lng)
	if err != nil {
		return model.FirePoint{}, 0, service.QueryOptions{}, err
	}

	opts := service.QueryOptions{
		Units: geo.Unit(c.DefaultQuery("units", string(geo.Kilometers))),
		Log:   c.Query("log") == "true",
	}
	return center, radiusKm, opts, nil
}

func validateSavePointRequest(req *SavePointRequest) error {
	if req.Latitude == nil {
		return &ValidationError{Field: "latitude", Message: "緯度は必須です"}
	}
	if req.Longitude == nil {
		return &ValidationError{Field: "longitude", Message: "経度は必須です"}
	}
	if *req.Latitude < -90 || *req.Latitude > 90 {
		return &ValidationError{Field: "latitude", Message: "緯度は-90から90の範囲で指定してください"}
	}
	if *req.Longitude < -180 || *req.Longitude > 180 {
		return &ValidationError{Field: "longitude", Message: "経度は-180から180の範囲で指定してください"}
	}
	return nil
}

// statusForError クライアント起因のエラーを400に、それ以外を500にマッピングする
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRadius),
		errors.Is(err, geohash.ErrInvalidCoordinates),
		errors.Is(err, geo.ErrUnknownUnit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError はバリデーションエラーを表す
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
