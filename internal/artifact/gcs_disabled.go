//go:build !gcp

package artifact

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, cfg GCSConfig) (Store, error) {
	return nil, fmt.Errorf("GCS artifact backend is not enabled in this build (use -tags gcp)")
}
