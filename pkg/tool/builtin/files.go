// Package builtin provides the standard tool set: file access, content
// search, and shell execution. Each tool declares the resource keys it
// touches so conflicting invocations are serialized by the executor.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/tool"
)

// pathKey normalizes a filesystem path into a resource key. Invocations
// touching the same cleaned absolute path conflict.
func pathKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return filepath.Clean(abs)
}

func stringParam(params map[string]any, name string) (string, bool) {
	v, ok := params[name].(string)
	return v, ok
}

// --- read_file ---

type ReadFileTool struct {
	// MaxBytes caps the returned content; zero means no cap.
	MaxBytes int
}

var _ tool.Tool = (*ReadFileTool)(nil)

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The file path to read."},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) ResourceKeys(params map[string]any) ([]string, bool) {
	if path, ok := stringParam(params, "path"); ok {
		return []string{pathKey(path)}, false
	}
	return nil, false
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	path, _ := stringParam(params, "path")

	slog.Info("Reading file", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return tool.Errorf(domain.ErrToolExecution, true, "failed to read file: %v", err)
	}
	content := string(data)
	if t.MaxBytes > 0 && len(content) > t.MaxBytes {
		content = content[:t.MaxBytes] + fmt.Sprintf("\n[truncated %d bytes]", len(data)-t.MaxBytes)
	}
	return tool.OK(content)
}

// --- write_file ---

type WriteFileTool struct{}

var _ tool.Tool = (*WriteFileTool)(nil)

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories as needed."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "The file path to write to."},
			"content": map[string]any{"type": "string", "description": "The content to write."},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) ResourceKeys(params map[string]any) ([]string, bool) {
	if path, ok := stringParam(params, "path"); ok {
		return []string{pathKey(path)}, false
	}
	return nil, false
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	path, _ := stringParam(params, "path")
	content, _ := stringParam(params, "content")

	slog.Info("Writing file", "path", path, "size", len(content))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tool.Errorf(domain.ErrToolExecution, true, "failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return tool.Errorf(domain.ErrToolExecution, true, "failed to write file: %v", err)
	}
	return tool.OK(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// --- list_dir ---

type ListDirTool struct{}

var _ tool.Tool = (*ListDirTool)(nil)

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List files in a directory. Directories are suffixed with /."
}

func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The directory path to list."},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) ResourceKeys(params map[string]any) ([]string, bool) {
	if path, ok := stringParam(params, "path"); ok {
		return []string{pathKey(path)}, false
	}
	return nil, false
}

func (t *ListDirTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	path, _ := stringParam(params, "path")

	slog.Info("Listing files", "path", path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return tool.Errorf(domain.ErrToolExecution, true, "failed to list directory: %v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		names = append(names, e.Name()+suffix)
	}
	sort.Strings(names)
	return tool.OK(strings.Join(names, "\n"))
}
