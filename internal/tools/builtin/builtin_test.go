package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteclaw/unillm/pkg/llm"
)

func TestRegistry(t *testing.T) {
	reg := Registry(t.TempDir())
	assert.Equal(t, []string{"current_time", "list_dir", "read_file"}, reg.Names())
	for _, def := range reg.Definitions() {
		assert.Equal(t, "object", def.Parameters["type"], def.Name)
	}
}

func TestTimeTool(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tool := &TimeTool{now: func() time.Time { return fixed }}

	out, err := tool.Execute(context.Background(), llm.Arguments{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00Z", out)

	_, err = tool.Execute(context.Background(), llm.Arguments{"timezone": "Mars/Olympus"})
	assert.ErrorContains(t, err, "unknown timezone")
}

func TestReadTool(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("one\ntwo\nthree\nfour\n"), 0o644))
	tool := NewReadTool(root)
	ctx := context.Background()

	out, err := tool.Execute(ctx, llm.Arguments{"path": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\nfour", out)

	out, err = tool.Execute(ctx, llm.Arguments{"path": "notes.txt", "startLine": float64(2), "endLine": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", out)

	_, err = tool.Execute(ctx, llm.Arguments{"path": "../etc/passwd"})
	assert.ErrorIs(t, err, errOutsideRoot)

	_, err = tool.Execute(ctx, llm.Arguments{})
	assert.ErrorContains(t, err, "path is required")

	_, err = tool.Execute(ctx, llm.Arguments{"path": "missing.txt"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestListTool(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), nil, 0o644))
	tool := NewListTool(root)

	out, err := tool.Execute(context.Background(), llm.Arguments{})
	require.NoError(t, err)
	assert.Equal(t, "a.txt\nb.txt\nsub/", out)

	out, err = tool.Execute(context.Background(), llm.Arguments{"path": "sub"})
	require.NoError(t, err)
	assert.Equal(t, "(empty)", out)
}
