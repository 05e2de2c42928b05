// Package qrcode renders otpauth provisioning URIs as PNG images so the
// platform UI can show a scannable enrollment code. Thin wrapper around
// github.com/skip2/go-qrcode with validation and sane defaults.
package qrcode

import (
	"errors"
	"fmt"

	skipqrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels used when size is zero.
const DefaultSize = 256

var (
	ErrEmptyContent = errors.New("qrcode: content is empty")
	ErrInvalidSize  = errors.New("qrcode: size must be positive")
)

// GeneratePNG encodes content into a size x size PNG QR code with medium
// error correction.
func GeneratePNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if size == 0 {
		size = DefaultSize
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}

	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrcode: encode: %w", err)
	}
	return png, nil
}
