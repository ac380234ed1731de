package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// CaptureHashToQR creates a QR code PNG encoding the capture's SHA-256 so a
// printed report can be matched to its input file.
func CaptureHashToQR(hash string, size int) ([]byte, error) {
	normalized := sanitizeHash(hash)
	if normalized == "" {
		return nil, fmt.Errorf("capture hash is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(normalized, qrcode.Medium, size)
}

func sanitizeHash(hash string) string {
	upper := strings.ToUpper(strings.TrimSpace(hash))
	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r)
		}
	}
	return b.String()
}
