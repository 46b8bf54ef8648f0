package publish

import (
	"io"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/vyvo/apkforge/backend/pkg/builder"
)

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

func newMemClient(t *testing.T) *sftp.Client {
	t.Helper()
	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server := sftp.NewRequestServer(pipeConn{serverRead, serverWrite}, sftp.InMemHandler())
	go func() { _ = server.Serve() }()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "builds/p1/build-7.log", LogPath("builds", "p1", 7))
	assert.Equal(t, "/srv/apk/p1/build-7.yaml", ManifestPath("/srv/apk/", "p1", 7))
}

func TestNewSFTPPublisherRequiresAuth(t *testing.T) {
	_, err := NewSFTPPublisher(SFTPConfig{Addr: "artifacts.local", User: "ci"}, nil)
	assert.ErrorIs(t, err, ErrNoAuth)

	_, err = NewSFTPPublisher(SFTPConfig{User: "ci", Password: "pw"}, nil)
	assert.Error(t, err)

	p, err := NewSFTPPublisher(SFTPConfig{Addr: "artifacts.local", User: "ci", Password: "pw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "artifacts.local:22", p.cfg.Addr)
	assert.Equal(t, "builds", p.cfg.Dir)
}

func TestUploadWritesLogAndManifest(t *testing.T) {
	client := newMemClient(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := builder.Record{
		ProjectID:  "p1",
		Generation: 3,
		Status:     builder.StatusSuccess,
		Progress:   100,
		Log:        "[INFO] Starting build process...\n[SUCCESS] Build complete! APK ready for download.\n",
		CreatedAt:  started,
		UpdatedAt:  started.Add(4 * time.Second),
	}

	require.NoError(t, Upload(client, "/builds", rec))

	f, err := client.Open("/builds/p1/build-3.log")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, rec.Log, string(data))

	f, err = client.Open("/builds/p1/build-3.yaml")
	require.NoError(t, err)
	data, err = io.ReadAll(f)
	require.NoError(t, err)
	f.Close()

	var m manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, "p1", m.ProjectID)
	assert.Equal(t, uint64(3), m.Generation)
	assert.Equal(t, "success", m.Status)
	assert.Equal(t, "build-3.log", m.LogFile)
	assert.True(t, m.FinishedAt.Equal(started.Add(4*time.Second)))
}
