// Package upload implements the image upload demonstration: the file is
// sniffed and echoed back as a preview, nothing is stored.
package upload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize is the largest accepted image
const MaxImageSize = 10 << 20

var (
	ErrNotImage = errors.New("please select an image file (JPEG, PNG, etc.)")
	ErrTooLarge = errors.New("image size exceeds 10MB limit")
	ErrEmpty    = errors.New("empty file")
)

// progressSteps are reported back in place of a real transfer
var progressSteps = []int{20, 45, 70, 90, 100}

// Result describes an accepted image
type Result struct {
	Filename   string `json:"filename"`
	MIME       string `json:"mime"`
	Extension  string `json:"extension"`
	Size       int    `json:"size"`
	PreviewURL string `json:"preview_url"`
	Progress   []int  `json:"progress"`
	Stored     bool   `json:"stored"`
	Message    string `json:"message"`
}

// Preview validates data as an image and returns its data-URL preview
func Preview(filename string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmpty
	}
	if len(data) > MaxImageSize {
		return Result{}, ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return Result{}, fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}

	mime := mtype.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	return Result{
		Filename:   filepath.Base(filename),
		MIME:       mime,
		Extension:  mtype.Extension(),
		Size:       len(data),
		PreviewURL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		Progress:   progressSteps,
		Stored:     false,
		Message:    "Image uploaded successfully",
	}, nil
}
