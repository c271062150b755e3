package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore("http://files.local/alumni/")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "avatars/a.png", strings.NewReader("png"), 3, "image/png"))

	rc, err := s.Get(ctx, "avatars/a.png")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	require.Equal(t, "png", string(b))
	require.Equal(t, "image/png", s.ContentType("avatars/a.png"))
	require.Equal(t, "http://files.local/alumni/avatars/a.png", s.PublicURL("avatars/a.png"))

	u, err := s.PresignedURL(ctx, "avatars/a.png", time.Minute)
	require.NoError(t, err)
	require.Contains(t, u, "expires=60")

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestObjectKey(t *testing.T) {
	k := ObjectKey("/avatars/", "Me.JPG")
	require.True(t, strings.HasPrefix(k, "avatars/"))
	require.True(t, strings.HasSuffix(k, ".jpg"))
	require.NotEqual(t, k, ObjectKey("avatars", "Me.JPG"))
}
