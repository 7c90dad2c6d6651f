package app

import (
	"log"
	"mime"
)

// staticTypes lists the extensions served from web/static whose MIME type is missing on
// minimal container images.
var staticTypes = map[string]string{
	".css": "text/css; charset=utf-8",
	".js":  "text/javascript; charset=utf-8",
}

func init() {
	for ext, typ := range staticTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			log.Printf("app: register MIME type for %s: %v", ext, err)
		}
	}
}
