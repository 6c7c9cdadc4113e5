package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"GeoWatch-App/internal/domain/repository"
	"GeoWatch-App/internal/domain/service"
	"GeoWatch-App/internal/handler"
	"GeoWatch-App/internal/infrastructure/database"
	"GeoWatch-App/internal/infrastructure/firestore"
	repoImpl "GeoWatch-App/internal/repository"
	"GeoWatch-App/internal/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	ctx := context.Background()

	store, cleanup, err := buildStore(ctx)
	if err != nil {
		log.Fatalf("ストアの初期化失敗: %v", err)
	}
	defer cleanup()

	fieldPath := os.Getenv("GEO_FIELD_PATH")
	if fieldPath == "" {
		fieldPath = usecase.DefaultFieldPath
	}

	radiusService := service.NewRadiusQueryService(store)
	geoUseCase := usecase.NewGeoQueryUseCase(radiusService, store, fieldPath)
	geoHandler := handler.NewGeoQueryHandler(geoUseCase)

	router := gin.Default()
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "GeoWatch-App"})
	})
	router.POST("/api/points", geoHandler.SavePoint)
	router.DELETE("/api/points/:id", geoHandler.DeletePoint)
	router.GET("/api/query/within", geoHandler.Within)
	router.GET("/api/query/within/stream", geoHandler.WithinStream)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	fmt.Printf("GeoWatch-App server starting on :%s...\n", port)
	log.Fatal(router.Run(":" + port))
}

// buildStore はGEO_BACKEND環境変数に応じたリポジトリを構築する。
// firestore / postgres / memory(デフォルト)
func buildStore(ctx context.Context) (repository.GeoStoreRepository, func(), error) {
	backend := os.Getenv("GEO_BACKEND")

	switch backend {
	case "firestore":
		projectID := os.Getenv("FIRESTORE_PROJECT_ID")
		if projectID == "" {
			fmt.Println("⚠️  環境変数が設定されていません:")
			fmt.Println("必要な環境変数: FIRESTORE_PROJECT_ID")
			fmt.Println("\n.envファイルを作成するか、環境変数を設定してください")
			return nil, nil, fmt.Errorf("FIRESTORE_PROJECT_IDが設定されていません")
		}

		fmt.Println("Initializing Firestore client...")
		client, err := firestore.NewFirestoreClient(ctx, projectID)
		if err != nil {
			return nil, nil, fmt.Errorf("Firestoreクライアント初期化失敗: %w", err)
		}
		fmt.Println("✅ Firestore connection successful!")

		collection := os.Getenv("FIRESTORE_COLLECTION")
		if collection == "" {
			collection = "geo_records"
		}
		store := repoImpl.NewFirestoreGeoRangeRepository(client.GetClient(), collection)
		return store, func() { client.Close() }, nil

	case "postgres":
		fmt.Println("Initializing PostgreSQL client...")
		client, err := database.NewPostgreSQLClient()
		if err != nil {
			return nil, nil, fmt.Errorf("PostgreSQLクライアント初期化失敗: %w", err)
		}

		fmt.Println("Performing PostgreSQL health check...")
		if err := client.HealthCheck(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("PostgreSQLヘルスチェック失敗: %w", err)
		}
		fmt.Println("✅ PostgreSQL connection successful!")

		store, err := repoImpl.NewPostgresGeoRangeRepository(client.DB, client.ConnStr())
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("PostgreSQLリポジトリ初期化失敗: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			client.Close()
			return nil, nil, fmt.Errorf("スキーマ初期化失敗: %w", err)
		}
		return store, func() {
			store.Close()
			client.Close()
		}, nil

	default:
		fmt.Println("Using in-memory store (set GEO_BACKEND=firestore or postgres for persistence)")
		return repoImpl.NewMemoryGeoRangeRepository(), func() {}, nil
	}
}
