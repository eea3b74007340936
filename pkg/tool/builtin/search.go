package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/tool"
)

const (
	searchMaxMatches  = 200
	searchMaxLineLen  = 512
	searchMaxFileSize = 4 << 20
)

// SearchTool greps file contents under a directory tree with a regular
// expression. Read-only, so it conflicts only with writers of the same root.
type SearchTool struct{}

var _ tool.Tool = (*SearchTool)(nil)

func (t *SearchTool) Name() string { return "search_file_content" }

func (t *SearchTool) Description() string {
	return "Search file contents under a directory for a regular expression pattern. Returns matching lines as path:line:text."
}

func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "The regular expression to search for."},
			"path":    map[string]any{"type": "string", "description": "The directory to search under."},
			"include": map[string]any{"type": "string", "description": "Optional glob filter on file names, e.g. *.go."},
		},
		"required": []string{"pattern", "path"},
	}
}

func (t *SearchTool) ResourceKeys(params map[string]any) ([]string, bool) {
	if path, ok := stringParam(params, "path"); ok {
		return []string{pathKey(path)}, false
	}
	return nil, false
}

func (t *SearchTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	pattern, _ := stringParam(params, "pattern")
	root, _ := stringParam(params, "path")
	include, _ := stringParam(params, "include")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return tool.Errorf(domain.ErrInvalidParameters, true, "invalid pattern: %v", err)
	}

	slog.Info("Searching file contents", "pattern", pattern, "path", root)

	var out strings.Builder
	matches := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			if ok, _ := filepath.Match(include, d.Name()); !ok {
				return nil
			}
		}
		if info, err := d.Info(); err != nil || info.Size() > searchMaxFileSize {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if !re.MatchString(line) {
				continue
			}
			if len(line) > searchMaxLineLen {
				line = line[:searchMaxLineLen]
			}
			fmt.Fprintf(&out, "%s:%d:%s\n", path, lineNo, line)
			matches++
			if matches >= searchMaxMatches {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		if ctx.Err() != nil {
			return tool.Errorf(domain.ErrCancelled, true, "search cancelled")
		}
		return tool.Errorf(domain.ErrToolExecution, true, "search failed: %v", walkErr)
	}

	if matches == 0 {
		return tool.OK("no matches")
	}
	return tool.OK(out.String())
}
