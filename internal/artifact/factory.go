package artifact

import (
	"context"
	"fmt"
	"os"
)

// Environment variables read by Open.
const (
	EnvDriver = "LABPLANNER_ARTIFACT_DRIVER"
	EnvFSRoot = "LABPLANNER_ARTIFACT_FS_ROOT"
)

// Open selects a Store implementation using environment variables.
//
//	LABPLANNER_ARTIFACT_DRIVER: fs|s3|memory (default fs)
//	LABPLANNER_ARTIFACT_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	(S3 specific variables are documented on OpenS3FromEnv)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv(EnvDriver)
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown artifact driver %s", driver)
	}
}
