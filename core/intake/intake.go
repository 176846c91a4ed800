// Package intake validates submitted files before a job is created. It is
// deliberately thin: a file either comes back as an accepted asset or with
// a typed rejection the caller can show the user.
package intake

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"demixer/model"
)

// MaxUploadBytes is the default ceiling for a submitted audio file.
const MaxUploadBytes = 50 << 20 // 50 MiB

var (
	// ErrUnsupportedFormat rejects anything that is not MPEG audio, WAV or OGG.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrTooLarge rejects files above the size ceiling.
	ErrTooLarge = errors.New("file exceeds maximum size")
)

// acceptedTypes mirrors what the upload form advertises.
var acceptedTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/ogg":   true,
}

var acceptedExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".ogg": true,
}

// Intake checks uploads against a size ceiling.
type Intake struct {
	maxBytes int64
}

// New creates an Intake. A non-positive maxBytes falls back to the default
// 50 MiB ceiling.
func New(maxBytes int64) *Intake {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	return &Intake{maxBytes: maxBytes}
}

// Accept validates the upload and returns the asset descriptor. The content
// type wins when present; otherwise the file extension decides.
func (i *Intake) Accept(filename, contentType string, size int64) (*model.Asset, error) {
	if size > i.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, i.maxBytes)
	}

	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	ok := acceptedTypes[ct]
	if !ok && (ct == "" || ct == "application/octet-stream") {
		ok = acceptedExtensions[strings.ToLower(filepath.Ext(filename))]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}

	return &model.Asset{
		Name:        filepath.Base(filename),
		Size:        size,
		ContentType: ct,
	}, nil
}
