package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/secrets"
)

func testFactory(t *testing.T) (*Factory, *secrets.Codec) {
	t.Helper()
	codec, err := secrets.NewCodec("test-master-key")
	require.NoError(t, err)
	return NewFactory(codec), codec
}

func TestFactory_UnknownVolumeType(t *testing.T) {
	factory, _ := testFactory(t)

	_, err := factory.ForVolume(context.Background(), &model.Volume{
		ID:     "vol-1",
		Type:   model.VolumeType("tape"),
		Config: map[string]string{},
	})

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))
}

func TestFactory_LocalVolume(t *testing.T) {
	factory, _ := testFactory(t)

	backend, err := factory.ForVolume(context.Background(), &model.Volume{
		ID:     "vol-1",
		Type:   model.VolumeTypeLocal,
		Config: map[string]string{"path": t.TempDir()},
	})

	require.NoError(t, err)
	assert.Equal(t, "local", backend.Name())
}

func TestFactory_DecryptsSensitiveFields(t *testing.T) {
	factory, codec := testFactory(t)

	encrypted, err := codec.EncryptFields("volume", map[string]string{
		"host":     "sftp.internal",
		"username": "backup",
		"password": "s3cret",
	})
	require.NoError(t, err)

	backend, err := factory.ForVolume(context.Background(), &model.Volume{
		ID:     "vol-2",
		Type:   model.VolumeTypeSFTP,
		Config: encrypted,
	})

	require.NoError(t, err)
	sftpBackend := backend.(*SFTPBackend)
	assert.Equal(t, "s3cret", sftpBackend.password)
}

func TestFactory_MissingRequiredKeys(t *testing.T) {
	factory, _ := testFactory(t)

	tests := []struct {
		name   string
		volume *model.Volume
	}{
		{"local without path", &model.Volume{Type: model.VolumeTypeLocal, Config: map[string]string{}}},
		{"sftp without host", &model.Volume{Type: model.VolumeTypeSFTP, Config: map[string]string{"username": "u", "password": "p"}}},
		{"ftp without password", &model.Volume{Type: model.VolumeTypeFTP, Config: map[string]string{"host": "h", "username": "u"}}},
		{"s3 without bucket", &model.Volume{Type: model.VolumeTypeS3, Config: map[string]string{"region": "eu-west-1", "access_key": "k", "secret_key": "s"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ForVolume(context.Background(), tt.volume)
			require.Error(t, err)
			assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))
		})
	}
}

func TestNewS3Backend_RequiresCredentials(t *testing.T) {
	_, err := NewS3Backend(context.Background(), map[string]string{
		"region": "eu-west-1",
		"bucket": "backups",
	})

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))
}

func TestNewSFTPBackend_BadPort(t *testing.T) {
	_, err := NewSFTPBackend(map[string]string{
		"host": "h", "username": "u", "password": "p", "port": "twenty-two",
	})

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))
}

func TestLocalBackend_WriteReadRoundTrip(t *testing.T) {
	backend, err := NewLocalBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("dump contents")
	require.NoError(t, backend.Write(ctx, "app-20260901.sql.gz", bytes.NewReader(content)))

	stream, err := backend.ReadStream(ctx, "app-20260901.sql.gz")
	require.NoError(t, err)
	defer stream.Close()

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocalBackend_Exists(t *testing.T) {
	backend, err := NewLocalBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := backend.Exists(ctx, "missing.sql.gz")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.Write(ctx, "present.sql.gz", bytes.NewReader([]byte("x"))))

	exists, err = backend.Exists(ctx, "present.sql.gz")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalBackend_Delete(t *testing.T) {
	backend, err := NewLocalBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backend.Write(ctx, "doomed.sql.gz", bytes.NewReader([]byte("x"))))
	require.NoError(t, backend.Delete(ctx, "doomed.sql.gz"))

	exists, err := backend.Exists(ctx, "doomed.sql.gz")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing key is not an error.
	assert.NoError(t, backend.Delete(ctx, "doomed.sql.gz"))
}

func TestLocalBackend_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	backend, err := NewLocalBackend(map[string]string{"path": root})
	require.NoError(t, err)

	err = backend.Write(context.Background(), "../escape.sql", bytes.NewReader([]byte("x")))

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.TypeOf(err))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "escape.sql"))
}

func TestLocalBackend_NoPartialFilesVisible(t *testing.T) {
	root := t.TempDir()
	backend, err := NewLocalBackend(map[string]string{"path": root})
	require.NoError(t, err)

	require.NoError(t, backend.Write(context.Background(), "snap.sql.gz", bytes.NewReader([]byte("x"))))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".partial")
	}
}

func TestLocalBackend_NestedKeys(t *testing.T) {
	backend, err := NewLocalBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backend.Write(ctx, "server-1/app.sql.gz", bytes.NewReader([]byte("x"))))

	exists, err := backend.Exists(ctx, "server-1/app.sql.gz")
	require.NoError(t, err)
	assert.True(t, exists)
}
