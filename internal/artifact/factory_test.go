package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv(EnvDriver, "")
	t.Setenv(EnvFSRoot, t.TempDir())
	store, err := Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, store.Driver())

	t.Setenv(EnvDriver, "memory")
	store, err = Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, store.Driver())

	t.Setenv(EnvDriver, "s3")
	t.Setenv("LABPLANNER_ARTIFACT_S3_BUCKET", "lab-artifacts")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	store, err = Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverS3, store.Driver())

	t.Setenv("LABPLANNER_ARTIFACT_S3_BUCKET", "")
	_, err = Open(context.Background())
	assert.Error(t, err)

	t.Setenv(EnvDriver, "ftp")
	_, err = Open(context.Background())
	assert.ErrorContains(t, err, "unknown artifact driver ftp")
}
