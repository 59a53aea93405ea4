package envelope

import (
	"fmt"
	"mime"
)

// ContentType is the media type carried by every sealed-envelope HTTP body.
const ContentType = "application/x-base64-sealed-json"

// ErrUnsupportedMediaType is returned by CheckContentType when the request's
// content type subtype doesn't end in "x-base64-sealed-json".
var ErrUnsupportedMediaType = fmt.Errorf("envelope: unsupported media type, want %s", ContentType)

// CheckContentType validates that header (an HTTP Content-Type value) names
// a subtype ending in "x-base64-sealed-json", per the spec's MIME tagging
// rule. Parameters (e.g. "; charset=utf-8") are ignored.
func CheckContentType(header string) error {
	mediatype, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ErrUnsupportedMediaType
	}
	if !hasSealedSuffix(mediatype) {
		return ErrUnsupportedMediaType
	}
	return nil
}

func hasSealedSuffix(mediatype string) bool {
	const suffix = "x-base64-sealed-json"
	if len(mediatype) < len(suffix) {
		return false
	}
	return mediatype[len(mediatype)-len(suffix):] == suffix
}
