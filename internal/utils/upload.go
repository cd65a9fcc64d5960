package utils

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// uploadExts are the extensions the upload form accepts
var uploadExts = []string{".png", ".jpg", ".jpeg"}

// AcceptedUpload reports whether name carries a png/jpg/jpeg extension
func AcceptedUpload(name string) bool {
	return slices.Contains(uploadExts, strings.ToLower(path.Ext(name)))
}

// CleanFilename reduces a client supplied name to a display-safe base name.
// Windows separators count as separators.
func CleanFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:*?"<>|`, r) || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	return strings.Trim(base, " .")
}

// HumanSize renders n bytes with a binary unit, e.g. "2.0 KB"
func HumanSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	units := "KMGTPE"
	v := float64(n) / 1024
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %cB", v, units[i])
}
