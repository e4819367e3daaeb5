package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

func TestRegistryDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Policy.MD")
	require.NoError(t, os.WriteFile(path, []byte("# Policy"), 0o644))

	r := NewRegistry()
	assert.True(t, r.Supports(path))
	text, err := r.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Policy", text)
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"diagram.png", "legacy.xls", "README"} {
		_, err := r.Extract(context.Background(), filepath.Join(t.TempDir(), name))
		assert.True(t, domain.IsKind(err, domain.ErrUnsupportedFormat), name)
	}
}
