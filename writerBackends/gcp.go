package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"m3u8conv/logger"
)

// UploadToGCSWithJSON streams content to a Google Cloud Storage object using the
// service account key in accessInfo["serviceAccountJSON"] (raw JSON or base64).
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, reader io.Reader, objectName string) error {
	credentialsJSON, err := decodeServiceAccount(accessInfo["serviceAccountJSON"])
	if err != nil {
		return err
	}
	bucketName := accessInfo["bucket"]
	name := objectKey(accessInfo["prefix"], objectName)

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(name).NewWriter(ctx)
	wc.ContentType = "video/mp4"

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", name, bucketName)
	return nil
}

func decodeServiceAccount(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("missing service account JSON")
	}
	if strings.HasPrefix(value, "{") {
		return []byte(value), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("service account JSON is neither JSON nor base64: %w", err)
	}
	return decoded, nil
}
