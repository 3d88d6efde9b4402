// Package artifact stores the files exported for a planned experiment. It is
// the only package that wires the infra-backed store implementations; the
// rest of the module depends on the Store interface.
package artifact

import (
	"context"

	"labplanner/internal/artifact/core"
	fsinfra "labplanner/internal/infra/artifact/fs"
	meminfra "labplanner/internal/infra/artifact/memory"
	s3infra "labplanner/internal/infra/artifact/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// NewFilesystem returns a store rooted at root (default ./artifacts).
func NewFilesystem(root string) (Store, error) {
	s, err := fsinfra.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns a process-local store.
func NewMemory() Store { return meminfra.New() }

// OpenS3FromEnv returns an S3 store configured from LABPLANNER_ARTIFACT_S3_*.
func OpenS3FromEnv(ctx context.Context) (Store, error) {
	s, err := s3infra.OpenFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
