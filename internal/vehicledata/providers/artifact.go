package providers

import (
	"encoding/base64"
	"net/http"
	"path"
	"strings"
)

// nonPhotoMarkers appear in URLs of diagrams, logos and placeholders that
// providers serve alongside real photos.
var nonPhotoMarkers = []string{
	"diagram", "schematic", "wiring", "drawing", "exploded",
	"logo", "icon", "sprite", "placeholder", "no-image", "noimage", "blank",
}

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".png":  false,
}

// LooksNonPhotographic reports whether an image URL names a diagram, logo or
// placeholder rather than a vehicle photo.
func LooksNonPhotographic(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, marker := range nonPhotoMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return strings.HasSuffix(stripQuery(lower), ".svg")
}

// LooksPhotographic reports whether an image URL has a photo file extension.
func LooksPhotographic(rawURL string) bool {
	return photoExtensions[path.Ext(stripQuery(strings.ToLower(rawURL)))]
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// SniffPhoto returns the MIME type of b when it is a raster photo format.
// SVG, GIF and anything else are reported as not a photo.
func SniffPhoto(b []byte) (string, bool) {
	mime := http.DetectContentType(b)
	switch mime {
	case "image/jpeg", "image/png", "image/webp":
		return mime, true
	}
	return mime, false
}

// DataURL encodes image bytes as an RFC 2397 data URL.
func DataURL(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}
