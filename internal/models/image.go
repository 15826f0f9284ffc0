package models

import (
	"fmt"
	"strings"
	"time"
)

// ImageType is the enumerated format tag attached to every stored image.
type ImageType string

const (
	ImageTypeGIF  ImageType = "gif"
	ImageTypeJPEG ImageType = "jpeg"
	ImageTypePNG  ImageType = "png"
	ImageTypeBMP  ImageType = "bmp"
	ImageTypeICO  ImageType = "ico"
)

var validImageTypes = map[ImageType]struct{}{
	ImageTypeGIF:  {},
	ImageTypeJPEG: {},
	ImageTypePNG:  {},
	ImageTypeBMP:  {},
	ImageTypeICO:  {},
}

var imageTypeMIMEs = map[ImageType]string{
	ImageTypeGIF:  "image/gif",
	ImageTypeJPEG: "image/jpeg",
	ImageTypePNG:  "image/png",
	ImageTypeBMP:  "image/bmp",
	ImageTypeICO:  "image/x-icon",
}

var imageTypeExtensions = map[ImageType]string{
	ImageTypeGIF:  ".gif",
	ImageTypeJPEG: ".jpg",
	ImageTypePNG:  ".png",
	ImageTypeBMP:  ".bmp",
	ImageTypeICO:  ".ico",
}

// ParseImageType validates a raw format tag.
func ParseImageType(raw string) (ImageType, error) {
	value := ImageType(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("image type is required")
	}
	if _, ok := validImageTypes[value]; !ok {
		return "", fmt.Errorf("invalid image type: %s", value)
	}
	return value, nil
}

// MIME returns the media type served for this image type.
func (t ImageType) MIME() string {
	if mime, ok := imageTypeMIMEs[t]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Ext returns the filename extension (with dot) for this image type.
func (t ImageType) Ext() string {
	if ext, ok := imageTypeExtensions[t]; ok {
		return ext
	}
	return ""
}

// Image is one catalog record describing a stored blob. The blob itself
// lives in the blob store under the same id.
type Image struct {
	ID         string    `json:"id"`
	SizeBytes  int64     `json:"size_bytes"`
	Type       string    `json:"type"`
	ExpiresAt  time.Time `json:"expires_at"`
	OwnerToken string    `json:"-"`
	GalleryID  string    `json:"gallery_id,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the record is past its expiry instant.
func (i Image) Expired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

// GallerySummary describes one gallery grouping for owner listings.
type GallerySummary struct {
	GalleryID  string    `json:"gallery_id"`
	ImageCount int       `json:"image_count"`
	ExpiresAt  time.Time `json:"expires_at"`
}
