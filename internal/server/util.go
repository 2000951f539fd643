package server

import (
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

// isSafeAbsPath ensures the provided path is absolute and carries no
// traversal segments. The manager repeats its own substring check; this is
// the stricter boundary validation for untrusted HTTP input.
func isSafeAbsPath(p string) bool {
	if p == "" {
		return false
	}
	if !filepath.IsAbs(p) {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	return filepath.Clean(p) == strings.TrimRight(p, string(filepath.Separator)) || p == "/"
}

func writeJSON(c *gin.Context, code int, v any) {
	c.JSON(code, v)
}
