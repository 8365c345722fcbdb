package printer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})
}

func TestPreview(t *testing.T) {
	t.Run("collapses whitespace in text", func(t *testing.T) {
		r := storage.Record{Content: "hello\n\t  world", ContentType: storage.ContentText}
		require.Equal(t, "hello world", Preview(r, 60))
	})

	t.Run("truncates long text by runes", func(t *testing.T) {
		r := storage.Record{Content: strings.Repeat("é", 20), ContentType: storage.ContentText}
		require.Equal(t, strings.Repeat("é", 9)+"…", Preview(r, 10))
	})

	t.Run("lists files", func(t *testing.T) {
		r := storage.Record{Content: "/a\n/b", ContentType: storage.ContentFilePath}
		require.Equal(t, "[2 files] /a, /b", Preview(r, 60))
	})

	t.Run("labels images", func(t *testing.T) {
		r := storage.Record{Content: "/x/1.png", ContentType: storage.ContentImage}
		require.Equal(t, "[image] /x/1.png", Preview(r, 60))
	})
}

func TestHumanBytes(t *testing.T) {
	require.Equal(t, "512 B", HumanBytes(512))
	require.Equal(t, "1.5 KB", HumanBytes(1536))
	require.Equal(t, "2.0 MB", HumanBytes(2<<20))
	require.Equal(t, "3.0 GB", HumanBytes(3<<30))
}
