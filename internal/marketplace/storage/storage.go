// Package storage keeps uploaded avatars and resumes on the local disk and
// hands back the public reference path the rest of the system stores.
package storage

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	e "github.com/gartstein/internhub/internal/marketplace/errors"
)

// MaxUploadSize is the largest accepted upload.
const MaxUploadSize = 5 << 20

// PublicPrefix is the URL prefix under which stored files are served.
const PublicPrefix = "/uploads/"

// Field names the kind of upload and decides which extensions are accepted.
type Field string

const (
	FieldAvatar Field = "avatar"
	FieldLogo   Field = "logo"
	FieldResume Field = "resume"
)

var allowed = map[Field][]string{
	FieldAvatar: {".jpg", ".jpeg", ".png", ".gif", ".webp"},
	FieldLogo:   {".jpg", ".jpeg", ".png", ".gif", ".webp"},
	FieldResume: {".pdf", ".doc", ".docx"},
}

var rejection = map[Field]string{
	FieldAvatar: "Only image files are allowed for avatars and logos",
	FieldLogo:   "Only image files are allowed for avatars and logos",
	FieldResume: "Only PDF and DOC files are allowed for resumes",
}

type LocalStore struct {
	dir string
	now func() time.Time
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, now: time.Now}, nil
}

// Dir is the directory files are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save checks the extension against field, writes at most MaxUploadSize
// bytes from r and returns "/uploads/<name>".
func (s *LocalStore) Save(field Field, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !accepts(field, ext) {
		return "", fmt.Errorf("%w: %s", e.ErrInvalidInput, rejection[field])
	}

	name := fmt.Sprintf("%s-%d-%d%s", field, s.now().UnixMilli(), rand.IntN(1e9), ext)
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxUploadSize {
		err = fmt.Errorf("%w: File too large. Maximum size is 5MB", e.ErrInvalidInput)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return PublicPrefix + name, nil
}

func accepts(field Field, ext string) bool {
	exts, ok := allowed[field]
	if !ok {
		return ext != ""
	}
	for _, candidate := range exts {
		if candidate == ext {
			return true
		}
	}
	return false
}
