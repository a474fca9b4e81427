// Package storage provides style source adapters for SLD documents kept on
// the local filesystem, S3, Azure Blob Storage or a plain HTTP server.
package storage

import (
	"path"
	"strings"

	"github.com/ngds/geobridge/internal/domain"
)

// styleExt is the extension of style documents.
const styleExt = ".sld"

// isStyle reports whether key names an SLD document.
func isStyle(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), styleExt)
}

// styleKey returns the object key for a style name or key.
func styleKey(name string) string {
	if isStyle(name) {
		return name
	}
	return name + styleExt
}

// styleName returns the style name of a key: its base name without extension.
func styleName(key string) string {
	base := path.Base(strings.ReplaceAll(key, "\\", "/"))
	return base[:len(base)-len(path.Ext(base))]
}

// missingStyle is the error returned when key has no document.
func missingStyle(key string) error {
	return &domain.NotFoundError{Kind: domain.ErrStyleNotFound, Name: styleName(key)}
}
