package archive

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchive(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	arc, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)

	t.Run("save and open round trip", func(t *testing.T) {
		body := "date,description,amount\n2024-01-15,Coffee,-4.50\n"
		info, err := arc.Save(ctx, userID, "january.csv", "text/csv", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, "january.csv", info.Name)
		assert.Equal(t, int64(len(body)), info.Size)

		rc, got, err := arc.Open(ctx, userID, info.ID)
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, body, string(data))
		assert.Equal(t, info.ID, got.ID)
	})

	t.Run("sanitizes hostile filenames", func(t *testing.T) {
		info, err := arc.Save(ctx, userID, "../../etc/passwd", "text/csv", strings.NewReader("x"))
		require.NoError(t, err)
		assert.NotContains(t, info.Path, "..")
		assert.NotContains(t, info.Path, "/")
	})

	t.Run("list scopes to user", func(t *testing.T) {
		otherUser := uuid.New()
		_, err := arc.Save(ctx, otherUser, "other.csv", "text/csv", strings.NewReader("y"))
		require.NoError(t, err)

		files, err := arc.List(ctx, otherUser)
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("remove deletes file and metadata", func(t *testing.T) {
		info, err := arc.Save(ctx, userID, "temp.csv", "text/csv", strings.NewReader("z"))
		require.NoError(t, err)

		require.NoError(t, arc.Remove(ctx, userID, info.ID))

		_, err = arc.Stat(ctx, userID, info.ID)
		assert.Error(t, err)
	})

	t.Run("stat unknown file errors", func(t *testing.T) {
		_, err := arc.Stat(ctx, userID, uuid.New())
		assert.ErrorContains(t, err, "file not found")
	})
}
