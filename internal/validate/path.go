// Package validate holds request-shape validation that does not belong to
// any single manager: path normalization for the filesystem capability.
package validate

import (
	"strings"

	"github.com/shipyard-neo/bay/internal/apperror"
)

// RelativePath validates and normalizes a client-supplied path for use
// inside a sandbox's working directory. It rejects absolute paths, null
// bytes, and any component-wise traversal past the root ("..").
// The returned path never starts with "/" and uses forward slashes.
func RelativePath(raw string) (string, error) {
	if raw == "" {
		return "", apperror.New(apperror.KindInvalidPath, "path must not be empty")
	}
	if strings.ContainsRune(raw, 0) {
		return "", apperror.New(apperror.KindInvalidPath, "path contains a null byte")
	}
	if strings.HasPrefix(raw, "/") {
		return "", apperror.New(apperror.KindInvalidPath, "path must be relative")
	}

	parts := strings.Split(raw, "/")
	var cleaned []string
	depth := 0
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return "", apperror.New(apperror.KindInvalidPath, "path escapes the sandbox root")
			}
			cleaned = cleaned[:len(cleaned)-1]
		default:
			depth++
			cleaned = append(cleaned, part)
		}
	}

	if len(cleaned) == 0 {
		return "", apperror.New(apperror.KindInvalidPath, "path resolves to the root")
	}

	return strings.Join(cleaned, "/"), nil
}

// OptionalRelativePath validates raw unless it is empty, in which case it
// returns defaultPath unchanged (used for endpoints where an empty path
// means "the working directory itself").
func OptionalRelativePath(raw, defaultPath string) (string, error) {
	if raw == "" {
		return defaultPath, nil
	}
	return RelativePath(raw)
}
