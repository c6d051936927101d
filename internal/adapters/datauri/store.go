// Package datauri returns artifacts inline as RFC 2397 data URLs, so nothing
// is written anywhere.
package datauri

import (
	"context"
	"encoding/base64"
)

// Store implements ports.ArtifactStore without persistence.
type Store struct{}

// PutScreenshot encodes a PNG as a data URL.
func (Store) PutScreenshot(_ context.Context, _, _ string, data []byte) (string, error) {
	return Encode("image/png", data), nil
}

// PutTrace encodes a JSON trace as a data URL.
func (Store) PutTrace(_ context.Context, _, _ string, data []byte) (string, error) {
	return Encode("application/json", data), nil
}

// Encode returns data as a base64 data URL of the given media type.
func Encode(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
