package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
)

const defaultQRSize = 200

// QRCodeDataURL renders uri as a PNG QR code and returns it as a data URL.
func QRCodeDataURL(uri string, size int) (string, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", fmt.Errorf("totp: parse uri: %w", err)
	}
	img, err := key.Image(size, size)
	if err != nil {
		return "", fmt.Errorf("totp: render qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("totp: encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
