package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

func tempFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("#Section A\n#Page 1\ntext"), 0o600))
	return p
}

func TestIngestCmd_RequiresPath(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "ingest")
	assert.Error(t, err)
}

func TestIngestCmd_File(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	path := tempFile(t, "FAB-FS-Q1-2025-English.md")

	out, err := execute(t, "ingest", path)
	require.NoError(t, err)

	assert.Equal(t, []string{path}, testIngest.files)
	assert.Contains(t, out, "✓ "+path)
	assert.Contains(t, out, "(2 sections, 5 chunks)")
	assert.Contains(t, out, "1 files, 2 sections, 5 chunks")
}

func TestIngestCmd_Directory(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	dir := t.TempDir()

	out, err := execute(t, "ingest", dir)
	require.NoError(t, err)

	assert.Equal(t, []string{dir}, testIngest.dirs)
	assert.Contains(t, out, "✗ "+filepath.Join(dir, "broken.pdf")+": document conversion failed")
	assert.Contains(t, out, "2 files, 4 sections, 10 chunks, 1 failed")
}

func TestIngestCmd_JSON(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "ingest", "--json", t.TempDir())
	require.NoError(t, err)

	var report domain.IngestReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Files, 2)
	assert.Equal(t, 10, report.Chunks)
}

func TestIngestCmd_MissingPath(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "absent.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIngestCmd_AllFilesFail(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	testIngest.fileErr = domain.ErrUnsupportedType
	path := tempFile(t, "deck.pptx")

	out, err := execute(t, "ingest", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 files failed")
	assert.Contains(t, out, "✗ "+path)
}

func TestIngestCmd_DirError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	testIngest.dirErr = errors.New("permission denied")

	_, err := execute(t, "ingest", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestIngestCmd_Watch(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	dir := t.TempDir()
	testIngest.onWatch = []domain.FileReport{{Path: filepath.Join(dir, "new.md"), Sections: 1, Chunks: 2}}

	out, err := execute(t, "ingest", "--watch", dir)
	require.NoError(t, err)

	assert.Equal(t, dir, testIngest.watched)
	assert.Contains(t, out, "Watching "+dir)
	assert.Contains(t, out, "✓ "+filepath.Join(dir, "new.md"))
}

func TestIngestCmd_WatchNeedsDirectory(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "ingest", "-w", tempFile(t, "a.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch needs a directory")
}

func TestIngestPath_CancelledFile(t *testing.T) {
	svc := &mockIngestService{fileErr: context.Canceled}

	report, err := ingestPath(context.Background(), svc, "a.md", false)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "a.md", report.Files[0].Path)
	assert.NotEmpty(t, report.Files[0].Error)
}
