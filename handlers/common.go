package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/storage"
	"github.com/alumni-network/alumni-backend-system/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// MaxImageSize bounds avatar and event image uploads.
const MaxImageSize = 5 << 20

// Guards are the authentication middlewares attached to routes.
type Guards struct {
	// Auth rejects anonymous requests.
	Auth gin.HandlerFunc
	// Optional identifies the caller when a token is present.
	Optional gin.HandlerFunc
}

var (
	adminOnly = middleware.RequireRole(models.RoleAdmin)
	staffOnly = middleware.RequireRole(models.RoleAdmin, models.RoleModerator)
)

// actor returns the authenticated caller. Anonymous requests get the zero Actor.
func actor(c *gin.Context) models.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

// pagination reads page and limit from the query string. Malformed values
// fall back to the defaults.
func pagination(c *gin.Context) models.Pagination {
	var p models.Pagination
	_ = c.ShouldBindQuery(&p)
	return p.Normalize()
}

// splitList parses a comma separated query value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// uploadImage stores the multipart "file" field under prefix and returns its
// public URL.
func uploadImage(c *gin.Context, store storage.ObjectStore, prefix string) (string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImageSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		return "", models.NewValidationError("invalid upload",
			models.FieldError{Field: "file", Message: "file is required and must be at most 5 MiB"})
	}
	if fh.Size > MaxImageSize {
		return "", models.NewValidationError("file too large",
			models.FieldError{Field: "file", Message: "file must be at most 5 MiB"})
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", models.NewValidationError("unsupported file type",
			models.FieldError{Field: "file", Message: "file must be an image"})
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	key := storage.ObjectKey(prefix, fh.Filename)
	if err := store.Put(c.Request.Context(), key, f, fh.Size, contentType); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return store.PublicURL(key), nil
}
