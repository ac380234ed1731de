package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"example.com/ledgate/internal/capture"
)

const captureField = "capture"

var errNoCapture = errors.New("multipart field \"capture\" is required")

// captureUpload is a parsed capture upload plus its form fields.
type captureUpload struct {
	Name    string
	Path    string
	Capture *capture.Capture
	Form    *multipart.Form
}

func (u *captureUpload) value(key string) string {
	if u.Form == nil {
		return ""
	}
	if v := u.Form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (u *captureUpload) int64Value(key string) (int64, error) {
	raw := u.value(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func (u *captureUpload) boolValue(key string) (bool, error) {
	raw := u.value(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func (u *captureUpload) remove() {
	if u != nil && u.Path != "" {
		os.Remove(u.Path)
	}
}

// readCaptureUpload spools the "capture" part to disk and parses it. A
// sampleRateHz field overrides the server default for CSV uploads.
func (s *Server) readCaptureUpload(w http.ResponseWriter, r *http.Request) (*captureUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("parse multipart: %w", err)
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File[captureField]) == 0 {
		return nil, errNoCapture
	}
	fh := r.MultipartForm.File[captureField][0]
	path, err := s.saveUploadedFile(fh)
	if err != nil {
		return nil, fmt.Errorf("save upload %s: %w", fh.Filename, err)
	}
	up := &captureUpload{Name: fh.Filename, Path: path, Form: r.MultipartForm}
	rate := s.sampleRateHz
	if raw := up.value("sampleRateHz"); raw != "" {
		rate, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			up.remove()
			return nil, fmt.Errorf("sampleRateHz: %w", err)
		}
	}
	c, err := capture.Open(path, rate)
	if err != nil {
		up.remove()
		return nil, err
	}
	up.Capture = c
	return up, nil
}

func (s *Server) saveUploadedFile(fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", fmt.Errorf("nil file header")
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	ext := filepath.Ext(fh.Filename)
	pattern := "upload-*"
	if ext != "" {
		pattern = fmt.Sprintf("upload-*%s", ext)
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(dest.Name())
		return "", err
	}
	if err := dest.Close(); err != nil {
		os.Remove(dest.Name())
		return "", err
	}
	return dest.Name(), nil
}
