package uploads

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"sitescan/internal/models"
)

// FilePrefix is prepended to every stored upload.
const FilePrefix = "tool-scan-"

var (
	// ErrInvalidDataURI marks input that is not data:<mime>;base64,<payload>.
	ErrInvalidDataURI = eris.New("invalid base64 image format")

	dataURIPattern = regexp.MustCompile(`(?s)^data:([^;,]+);base64,(.+)$`)

	// imageExts maps the accepted raster image types to their file extension.
	// Scriptable types such as image/svg+xml are rejected.
	imageExts = map[string]string{
		"image/png":   "png",
		"image/jpeg":  "jpeg",
		"image/jpg":   "jpg",
		"image/pjpeg": "jpg",
		"image/gif":   "gif",
		"image/webp":  "webp",
		"image/bmp":   "bmp",
		"image/tiff":  "tiff",
		"image/heic":  "heic",
		"image/heif":  "heif",
		"image/avif":  "avif",
	}
)

// DecodedImage is the parsed form of a data URI.
type DecodedImage struct {
	MimeType string
	Ext      string
	Data     []byte
	DataURI  string
}

// ParseDataURI validates and decodes a data:<mime>;base64,<payload> string.
func ParseDataURI(raw string) (*DecodedImage, error) {
	raw = strings.TrimSpace(raw)
	m := dataURIPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, ErrInvalidDataURI
	}
	mime := strings.ToLower(strings.TrimSpace(m[1]))
	ext, ok := imageExts[mime]
	if !ok {
		return nil, ErrInvalidDataURI
	}

	payload := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, m[2])
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil || len(data) == 0 {
		return nil, ErrInvalidDataURI
	}

	return &DecodedImage{
		MimeType: mime,
		Ext:      ext,
		Data:     data,
		DataURI:  "data:" + mime + ";base64," + payload,
	}, nil
}

// Store writes decoded images under a directory served at /uploads. Files
// are staged in a sibling directory and only appear under dir complete.
type Store struct {
	dir           string
	tmpDir        string
	publicBaseURL string
	now           func() time.Time
}

// NewStore creates the directory and its staging sibling if needed.
// publicBaseURL may be empty, in which case callers must supply a request
// base URL to Save.
func NewStore(dir, publicBaseURL string) (*Store, error) {
	if dir == "" {
		return nil, eris.New("uploads: directory required")
	}
	dir = filepath.Clean(dir)
	tmpDir := filepath.Join(filepath.Dir(dir), "."+filepath.Base(dir)+"-staging")
	for _, d := range []string{dir, tmpDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, eris.Wrapf(err, "uploads: create %s", d)
		}
	}
	return &Store{
		dir:           dir,
		tmpDir:        tmpDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}, nil
}

// Dir is the directory files are served from.
func (s *Store) Dir() string { return s.dir }

// StagingDir holds partially written uploads. It must not be served.
func (s *Store) StagingDir() string { return s.tmpDir }

// Save stores img and returns the asset with its public URL. requestBase is
// "<scheme>://<host>" of the inbound request and is used only when no public
// base URL is configured.
func (s *Store) Save(img *DecodedImage, requestBase string) (*models.ImageAsset, error) {
	tmp, err := os.CreateTemp(s.tmpDir, "upload-*")
	if err != nil {
		return nil, eris.Wrap(err, "uploads: create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(img.Data); err != nil {
		tmp.Close()
		return nil, eris.Wrap(err, "uploads: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "uploads: close temp file")
	}

	name, finalPath, err := s.publish(tmpPath, img.Ext)
	if err != nil {
		return nil, err
	}

	base := s.publicBaseURL
	if base == "" {
		base = strings.TrimRight(requestBase, "/")
	}
	return &models.ImageAsset{
		Data:     img.Data,
		MimeType: img.MimeType,
		FileName: name,
		Path:     finalPath,
		DataURI:  img.DataURI,
		URL:      base + "/uploads/" + name,
	}, nil
}

// publish links the staged file under the first free public name. A link
// never replaces an existing file, so concurrent saves cannot collide.
func (s *Store) publish(tmpPath, ext string) (string, string, error) {
	stamp := s.now().UnixMilli()
	for idx := 0; idx < 1000; idx++ {
		name := fmt.Sprintf("%s%d.%s", FilePrefix, stamp, ext)
		if idx > 0 {
			name = fmt.Sprintf("%s%d-%d.%s", FilePrefix, stamp, idx, ext)
		}
		path := filepath.Join(s.dir, name)
		err := os.Link(tmpPath, path)
		if err == nil {
			return name, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", eris.Wrap(err, "uploads: publish file")
		}
	}
	return "", "", eris.New("uploads: no free file name")
}
