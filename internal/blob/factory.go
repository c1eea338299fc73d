package blob

import (
	"context"
	"fmt"
	"os"

	fsblob "tracecore/internal/infra/blob/fs"
	memblob "tracecore/internal/infra/blob/memory"
	s3blob "tracecore/internal/infra/blob/s3"
)

// Open selects a blob.Store implementation using environment variables.
//
//	TRACECORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	TRACECORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("TRACECORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("TRACECORE_BLOB_FS_ROOT")
		return fsblob.New(root)
	case DriverS3:
		return s3blob.OpenFromEnv(ctx)
	case DriverMemory:
		return memblob.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
