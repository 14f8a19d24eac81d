package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// DefaultBucket holds every scan artifact.
const DefaultBucket = "crop-scans"

type Bucket interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	PublicURL(key string) string
}

// Opener is implemented by buckets that can serve their own objects.
type Opener interface {
	Open(key string) (io.ReadSeekCloser, error)
}

// RandomKey returns a collision-free object key carrying the given extension.
func RandomKey(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return uuid.New().String()
	}
	return fmt.Sprintf("%s.%s", uuid.New().String(), ext)
}
