package storage

import (
	"context"
	"time"
)

// Service stores generated long-form report artifacts in remote object
// storage and hands out time-limited download links.
type Service interface {
	UploadArtifact(ctx context.Context, key string, body []byte) (string, error)
	GetObjectURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
