package builtin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/liteclaw/unillm/pkg/llm"
)

// maxReadBytes bounds what read_file returns to the model.
const maxReadBytes = 64 * 1024

var errOutsideRoot = errors.New("path is outside the allowed directory")

// resolve maps a model-supplied path onto root, rejecting escapes.
func resolve(root, path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return path, nil
}

// ReadTool reads file contents.
type ReadTool struct {
	root string
}

// NewReadTool creates a new read tool confined to root.
func NewReadTool(root string) *ReadTool {
	return &ReadTool{root: root}
}

// Name returns the tool name.
func (t *ReadTool) Name() string {
	return "read_file"
}

// Description returns the tool description.
func (t *ReadTool) Description() string {
	return `Read the contents of a text file.
For large files, use startLine and endLine to read specific sections.`
}

// Parameters returns the JSON Schema for parameters.
func (t *ReadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the working directory",
			},
			"startLine": map[string]any{
				"type":        "integer",
				"description": "Start line number (1-indexed, optional)",
			},
			"endLine": map[string]any{
				"type":        "integer",
				"description": "End line number (1-indexed, inclusive, optional)",
			},
		},
		"required": []string{"path"},
	}
}

// Execute reads the file, or the requested line range of it.
func (t *ReadTool) Execute(ctx context.Context, args llm.Arguments) (string, error) {
	raw, _ := args.String("path")
	path, err := resolve(t.root, raw)
	if err != nil {
		return "", err
	}

	start, _ := args.Float("startLine")
	end, _ := args.Float("endLine")

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReadBytes)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if start > 0 && line < int(start) {
			continue
		}
		if end > 0 && line > int(end) {
			break
		}
		if b.Len()+len(scanner.Text()) > maxReadBytes {
			b.WriteString("\n[truncated]")
			return b.String(), nil
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", raw, err)
	}
	return b.String(), nil
}

// ListTool lists directory entries.
type ListTool struct {
	root string
}

// NewListTool creates a new list tool confined to root.
func NewListTool(root string) *ListTool {
	return &ListTool{root: root}
}

// Name returns the tool name.
func (t *ListTool) Name() string {
	return "list_dir"
}

// Description returns the tool description.
func (t *ListTool) Description() string {
	return "List the entries of a directory. Directories are shown with a trailing slash."
}

// Parameters returns the JSON Schema for parameters.
func (t *ListTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list (default: working directory)",
			},
		},
	}
}

// Execute lists the directory, one entry per line, sorted.
func (t *ListTool) Execute(ctx context.Context, args llm.Arguments) (string, error) {
	raw, _ := args.String("path")
	if raw == "" {
		raw = "."
	}
	path, err := resolve(t.root, raw)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "(empty)", nil
	}
	return strings.Join(names, "\n"), nil
}
