package acp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// handleReadFile serves fs/read_text_file. The path must be absolute. A
// nonexistent path is not an error: the result carries null content and
// exists=false so agents can probe existence. A directory is a domain
// error.
func (h *Handlers) handleReadFile(params json.RawMessage) (interface{}, error) {
	var p ReadFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errInvalidParams("invalid fs/read_text_file params: %v", err)
	}
	if p.Path == "" {
		return nil, errMissingParam("path")
	}
	if !filepath.IsAbs(p.Path) {
		return nil, errInvalidParams("Path must be absolute: %s", p.Path)
	}

	info, err := os.Stat(p.Path)
	if os.IsNotExist(err) {
		exists := false
		return ReadFileResult{Content: nil, Exists: &exists}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p.Path, err)
	}
	if info.IsDir() {
		return nil, &HandlerError{Code: ErrCodeInvalidResourceState, Message: "Path is not a file: " + p.Path}
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.Path, err)
	}

	content := string(data)
	return ReadFileResult{Content: &content}, nil
}

// handleWriteFile serves fs/write_text_file. The path must be absolute;
// missing parent directories are created; existing files are overwritten.
func (h *Handlers) handleWriteFile(params json.RawMessage) (interface{}, error) {
	var p WriteFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errInvalidParams("invalid fs/write_text_file params: %v", err)
	}
	if p.Path == "" {
		return nil, errMissingParam("path")
	}
	if p.Content == nil {
		return nil, errMissingParam("content")
	}
	if !filepath.IsAbs(p.Path) {
		return nil, errInvalidParams("Path must be absolute: %s", p.Path)
	}

	if info, err := os.Stat(p.Path); err == nil && info.IsDir() {
		return nil, &HandlerError{Code: ErrCodeInvalidResourceState, Message: "Path is a directory: " + p.Path}
	}

	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories for %s: %w", p.Path, err)
	}
	if err := os.WriteFile(p.Path, []byte(*p.Content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", p.Path, err)
	}

	return SuccessResult{Success: true}, nil
}
