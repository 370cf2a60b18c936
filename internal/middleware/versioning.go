package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threadpick/threadpick/pkg/models"
)

const (
	CurrentAPIVersion = "1"
)

var supportedVersions = []string{"1"}

var (
	acceptVersionRe = regexp.MustCompile(`application/vnd\.fashion-api\.v(\d+)\+json`)
	pathVersionRe   = regexp.MustCompile(`^/api/v(\d+)/`)
)

// Versioning negotiates the protocol version. Precedence: path prefix,
// API-Version header, vendor Accept header, version query parameter. Every
// response echoes the negotiated and supported versions.
func Versioning() gin.HandlerFunc {
	return func(c *gin.Context) {
		version := ""

		if m := pathVersionRe.FindStringSubmatch(c.Request.URL.Path); m != nil {
			version = m[1]
		}
		if version == "" {
			version = c.GetHeader("API-Version")
		}
		if version == "" {
			if m := acceptVersionRe.FindStringSubmatch(c.GetHeader("Accept")); m != nil {
				version = m[1]
			}
		}
		if version == "" {
			version = c.Query("version")
		}
		if version == "" {
			version = CurrentAPIVersion
		}

		c.Header("API-Version", version)
		c.Header("API-Current-Version", CurrentAPIVersion)
		c.Header("API-Supported-Versions", strings.Join(supportedVersions, ", "))

		if !isSupportedVersion(version) {
			c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "unsupported_version",
				Message:   "API version " + version + " is not supported",
				Timestamp: time.Now().UTC(),
			})
			return
		}

		c.Set("api_version", version)
		c.Next()
	}
}

func isSupportedVersion(v string) bool {
	for _, s := range supportedVersions {
		if v == s {
			return true
		}
	}
	return false
}
