package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder for thumbnails
	"image/jpeg"
	_ "image/png" // register decoder for thumbnails
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/nfnt/resize"
)

const (
	// URLPrefix is where uploaded files are served from.
	URLPrefix = "/api/uploads/"
	// LegacyURLPrefix is the older public path still found in saved records.
	LegacyURLPrefix = "/uploads/"

	DefaultMaxBytes       = 100 << 20
	DefaultThumbnailWidth = 320

	// DefaultMaxThumbnailPixels caps the source size decoded for a thumbnail.
	DefaultMaxThumbnailPixels = 40_000_000

	thumbDir = "thumbs"
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// UploadError is a rejected upload. Reason is safe to show to the operator.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrInvalidName is returned by Resolve for names that escape the upload dir.
var ErrInvalidName = errors.New("invalid filename")

type Store struct {
	Dir                string
	MaxBytes           int64
	ThumbnailWidth     uint
	MaxThumbnailPixels int
	now                func() time.Time
}

func NewStore(dir string, maxBytes int64, thumbWidth uint) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{
		Dir:                abs,
		MaxBytes:           maxBytes,
		ThumbnailWidth:     thumbWidth,
		MaxThumbnailPixels: DefaultMaxThumbnailPixels,
		now:                time.Now,
	}, nil
}

// SanitizeName replaces everything outside [A-Za-z0-9.-] with an underscore.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(filepath.Base(name), "_")
}

// Save validates and stores one uploaded image and returns its public URL.
// contentType comes from the client; when it is missing or generic the
// content is sniffed instead.
func (s *Store) Save(name, contentType string, size int64, r io.Reader) (string, error) {
	if size > s.MaxBytes {
		return "", &UploadError{Reason: fmt.Sprintf("File size exceeds the %dMB limit.", s.MaxBytes>>20)}
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", &UploadError{Reason: "Failed to read upload", Err: err}
	}
	head = head[:n]
	if n == 0 {
		return "", &UploadError{Reason: "No file provided"}
	}

	mimeType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(head)
	}
	if !allowedTypes[mimeType] {
		return "", &UploadError{Reason: "Invalid file type. Only JPEG, PNG, WebP, and GIF are allowed."}
	}
	// Files are served with the type of their extension, so the two must agree.
	if ContentType(SanitizeName(name)) != mimeType {
		return "", &UploadError{Reason: "File extension does not match its type."}
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		slog.Error("Error uploading file", "error", err)
		return "", &UploadError{Reason: "Failed to upload file", Err: err}
	}
	filename := fmt.Sprintf("%d_%s", s.now().UnixMilli(), SanitizeName(name))
	dst := filepath.Join(s.Dir, filename)

	out, err := os.Create(dst)
	if err != nil {
		slog.Error("Error uploading file", "error", err)
		return "", &UploadError{Reason: "Failed to upload file", Err: err}
	}
	// Read one byte past the limit to detect clients that lied about size.
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.MaxBytes+1)
	written, err := io.Copy(out, body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		slog.Error("Error uploading file", "error", err)
		return "", &UploadError{Reason: "Failed to upload file", Err: err}
	}
	if written > s.MaxBytes {
		os.Remove(dst)
		return "", &UploadError{Reason: fmt.Sprintf("File size exceeds the %dMB limit.", s.MaxBytes>>20)}
	}

	if s.ThumbnailWidth > 0 {
		if err := s.writeThumbnail(dst, filename); err != nil {
			slog.Warn("Thumbnail generation failed", "file", filename, "error", err)
		}
	}

	slog.Info("Stored upload", "file", filename, "bytes", written, "type", mimeType)
	return URLPrefix + filename, nil
}

func (s *Store) writeThumbnail(src, filename string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	width, height, err := imageDimensions(data)
	if err != nil {
		return err
	}
	if s.MaxThumbnailPixels > 0 && width*height > s.MaxThumbnailPixels {
		return fmt.Errorf("image is %dx%d, over the %d pixel thumbnail limit", width, height, s.MaxThumbnailPixels)
	}
	img, err := decodeImage(data)
	if err != nil {
		return err
	}
	if uint(img.Bounds().Dx()) > s.ThumbnailWidth {
		img = resize.Resize(s.ThumbnailWidth, 0, img, resize.Lanczos3)
	}

	dir := filepath.Join(s.Dir, thumbDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(dir, filename+".jpg"))
	if err != nil {
		return err
	}
	defer out.Close()
	return jpeg.Encode(out, img, &jpeg.Options{Quality: 80})
}

func decodeImage(data []byte) (image.Image, error) {
	if isWEBP(data) {
		return webp.Decode(bytes.NewReader(data), &decoder.Options{})
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// imageDimensions reads the size from the image header without decoding the
// pixels.
func imageDimensions(data []byte) (int, int, error) {
	if isWEBP(data) {
		return webpDimensions(data)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// webpDimensions parses the canvas size from the first chunk of a RIFF WebP
// file: VP8X (extended), VP8L (lossless) or "VP8 " (lossy).
func webpDimensions(data []byte) (int, int, error) {
	if len(data) < 30 {
		return 0, 0, errors.New("webp header too short")
	}
	le24 := func(b []byte) int { return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 }
	switch string(data[12:16]) {
	case "VP8X":
		return 1 + le24(data[24:27]), 1 + le24(data[27:30]), nil
	case "VP8L":
		if data[20] != 0x2f {
			return 0, 0, errors.New("bad VP8L signature")
		}
		bits := uint32(data[21]) | uint32(data[22])<<8 | uint32(data[23])<<16 | uint32(data[24])<<24
		return 1 + int(bits&0x3fff), 1 + int((bits>>14)&0x3fff), nil
	case "VP8 ":
		if data[23] != 0x9d || data[24] != 0x01 || data[25] != 0x2a {
			return 0, 0, errors.New("bad VP8 start code")
		}
		w := (int(data[26]) | int(data[27])<<8) & 0x3fff
		h := (int(data[28]) | int(data[29])<<8) & 0x3fff
		return w, h, nil
	}
	return 0, 0, fmt.Errorf("unknown webp chunk %q", data[12:16])
}

func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// Resolve maps a requested filename to a path inside the upload dir.
func (s *Store) Resolve(filename string) (string, error) {
	if filename == "" {
		return "", ErrInvalidName
	}
	resolved := filepath.Clean(filepath.Join(s.Dir, filename))
	if !strings.HasPrefix(resolved, s.Dir+string(os.PathSeparator)) {
		return "", ErrInvalidName
	}
	return resolved, nil
}

// ThumbnailPath returns the thumbnail for filename if one was generated.
func (s *Store) ThumbnailPath(filename string) (string, bool) {
	p, err := s.Resolve(path.Join(thumbDir, path.Base(filename)+".jpg"))
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Manages reports whether url points at a file in the upload dir.
func (s *Store) Manages(url string) bool {
	return strings.HasPrefix(url, URLPrefix) || strings.HasPrefix(url, LegacyURLPrefix)
}

// Remove deletes the file behind url and its thumbnail. A missing thumbnail
// is not an error.
func (s *Store) Remove(url string) error {
	if !s.Manages(url) {
		return fmt.Errorf("%s is not an uploaded file", url)
	}
	p, err := s.Resolve(path.Base(url))
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return err
	}
	if thumb, ok := s.ThumbnailPath(path.Base(url)); ok {
		if err := os.Remove(thumb); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to delete thumbnail", "path", thumb, "error", err)
		}
	}
	return nil
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// ContentType picks the response type from the file extension.
func ContentType(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
