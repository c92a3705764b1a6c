package media

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxImageBytes caps a single upload.
const MaxImageBytes = 10 * 1024 * 1024

var (
	ErrTooLarge = errors.New("image exceeds 10MB")
	ErrNotImage = errors.New("only image uploads are allowed")
)

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Stored describes a saved upload.
type Stored struct {
	URL      string
	FileName string
	Mime     string
	Size     int64
}

// Store writes uploads under a directory served at a URL prefix.
type Store struct {
	dir    string
	prefix string
}

// NewStore creates dir if needed.
func NewStore(dir, prefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, prefix: strings.TrimRight(prefix, "/")}, nil
}

// Dir is the directory uploads are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes r under a generated name. The content must sniff as an image
// and the original extension must be a known image type.
func (s *Store) Save(r io.Reader, originalName string) (Stored, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExt[ext]; !ok {
		return Stored{}, ErrNotImage
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	mime := http.DetectContentType(head)
	if !strings.HasPrefix(mime, "image/") {
		return Stored{}, ErrNotImage
	}

	name := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Stored{}, fmt.Errorf("create upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(br, MaxImageBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}
	if n > MaxImageBytes {
		return Stored{}, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return Stored{}, fmt.Errorf("store upload: %w", err)
	}

	return Stored{
		URL:      path.Join(s.prefix, name),
		FileName: filepath.Base(originalName),
		Mime:     mime,
		Size:     n,
	}, nil
}

// Remove deletes an upload previously returned by Save. URLs outside the prefix are ignored.
func (s *Store) Remove(url string) error {
	name := strings.TrimPrefix(url, s.prefix+"/")
	if name == url || name == "" || name != filepath.Base(name) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
