// Package fileutil provides file and path utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for file utility operations.
var (
	ErrExtensionEmpty         = errors.New("extension cannot be empty")
	ErrExtensionPathTraversal = errors.New("extension contains path separator or null byte")
	ErrNotDirectory           = errors.New("not a directory")
)

// ValidateExtension checks that the extension is safe to append to a file name.
func ValidateExtension(extension string) error {
	if extension == "" {
		return ErrExtensionEmpty
	}
	if strings.ContainsAny(extension, "/\\\x00") {
		return ErrExtensionPathTraversal
	}
	return nil
}

// ReplaceExt swaps the extension of path for extension (without the dot).
func ReplaceExt(path, extension string) (string, error) {
	if err := ValidateExtension(extension); err != nil {
		return "", err
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + extension, nil
}

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists returns true if the path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CheckWritableDir verifies that a file can be created in dir.
func CheckWritableDir(dir string) error {
	if !DirExists(dir) {
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	f, err := os.CreateTemp(dir, "mml2svg-probe-*")
	if err != nil {
		return fmt.Errorf("creating probe file: %w", err)
	}
	name := f.Name()
	closeErr := f.Close()
	_ = os.Remove(name)
	if closeErr != nil {
		return fmt.Errorf("closing probe file: %w", closeErr)
	}
	return nil
}

// IsFilePath returns true if the string looks like a file path rather than a name.
// A string containing path separators (/, \) is treated as a path.
//
// Examples:
//   - "production" -> false (name)
//   - "./mml2svg.yaml" -> true (relative path)
//   - "/etc/mml2svg/prod.yaml" -> true (absolute)
//   - "C:\config\prod.yaml" -> true (Windows)
func IsFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}
