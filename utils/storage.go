package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

// getGoogleClient initializes a Google Cloud Storage client.
// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
// For local runs set GCS_CREDENTIALS_JSON with explicit JSON.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func localStorageRoot() string {
	root := strings.TrimSpace(os.Getenv("LOCAL_STORAGE_ROOT"))
	if root == "" {
		root = "./data/statements"
	}
	return root
}

// StoreStatementImage persists the raw statement image under objectKey and
// returns nothing but the error; the objectKey itself is the image reference
// stored on the Statement.
func StoreStatementImage(ctx context.Context, objectKey string, data []byte, contentType string) error {
	switch GetStorageProvider() {
	case StorageProviderLocal:
		path := filepath.Join(localStorageRoot(), objectKey)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	default:
		bucketName := os.Getenv("GCS_BUCKET")
		if bucketName == "" {
			return errors.New("GCS_BUCKET is required")
		}
		client, err := getGoogleClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		wc := client.Bucket(bucketName).Object(objectKey).NewWriter(ctx)
		wc.ContentType = contentType
		if _, err := wc.Write(data); err != nil {
			return err
		}
		return wc.Close()
	}
}

// FetchStatementImage loads the stored image bytes for the extraction worker.
func FetchStatementImage(ctx context.Context, objectKey string) ([]byte, error) {
	switch GetStorageProvider() {
	case StorageProviderLocal:
		return os.ReadFile(filepath.Join(localStorageRoot(), objectKey))
	default:
		bucketName := os.Getenv("GCS_BUCKET")
		if bucketName == "" {
			return nil, errors.New("GCS_BUCKET is required")
		}
		client, err := getGoogleClient(ctx)
		if err != nil {
			return nil, err
		}
		defer client.Close()

		rc, err := client.Bucket(bucketName).Object(objectKey).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs object %q not readable: %v", objectKey, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
}
