// Package imagetype classifies uploaded bytes into the supported image
// format tags. Classification sniffs content, never filenames.
package imagetype

import (
	"fmt"
	"net/http"

	"quicksand/internal/models"
)

// SniffLen is how many leading bytes classification needs.
const SniffLen = 512

var mimeToType = map[string]models.ImageType{
	"image/gif":                models.ImageTypeGIF,
	"image/jpeg":               models.ImageTypeJPEG,
	"image/png":                models.ImageTypePNG,
	"image/bmp":                models.ImageTypeBMP,
	"image/x-icon":             models.ImageTypeICO,
	"image/vnd.microsoft.icon": models.ImageTypeICO,
}

// Detect returns the image type tag for the leading bytes of an upload,
// or an error when the content is not a supported image.
func Detect(head []byte) (models.ImageType, error) {
	if len(head) == 0 {
		return "", fmt.Errorf("file is empty")
	}
	if t, ok := mimeToType[http.DetectContentType(head)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("file is not a supported image")
}
