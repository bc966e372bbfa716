// Package storage lays out book folders under the library root.
package storage // import "github.com/Xunop/e-oasis-meta/internal/storage"

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Xunop/e-oasis-meta/internal/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	authorDirMax = 100
	titleDirMax  = 42
)

type LocalStorage struct {
	// Root is the library directory holding metadata.db
	Root string
}

func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{Root: root}
}

var unsafeChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// sanitize makes s usable as one path component and cuts it to limit runes.
func sanitize(s string, limit int) string {
	s = unsafeChars.Replace(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return '_'
		}
		return r
	}, s)
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	s = strings.Trim(s, ". ")
	if s == "" {
		return "Unknown"
	}
	return s
}

// BookDir returns the folder of a book relative to Root: "Author/Title (id)".
func BookDir(author, title string, id int) string {
	return filepath.ToSlash(filepath.Join(
		sanitize(author, authorDirMax),
		fmt.Sprintf("%s (%d)", sanitize(title, titleDirMax), id),
	))
}

// FormatPath is the absolute file name of one stored format.
func (s *LocalStorage) FormatPath(bookDir, fileName, format string) string {
	return filepath.Join(s.Root, filepath.FromSlash(bookDir), fileName+"."+strings.ToLower(format))
}

// Stat returns the size of an existing format file.
func (s *LocalStorage) Stat(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to access %s", path)
	}
	if fi.IsDir() {
		return 0, errors.Errorf("%s is a directory", path)
	}
	log.Debug("Found format file", zap.String("path", path), zap.Int64("size", fi.Size()))
	return fi.Size(), nil
}
