package media

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestOpen(t *testing.T) {
	s := Store{Dir: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "flyer.png"), pngHeader, 0o644))

	a, err := s.Open("flyer.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", a.MimeType)
	assert.Equal(t, KindImage, KindOf(a.MimeType))

	_, err = s.Open("missing.pdf")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = s.Open("../secret")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestList(t *testing.T) {
	s := Store{Dir: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "b.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "a.JPG"), []byte("x"), 0o644))
	files, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []File{{Name: "a.JPG", IsImage: true}, {Name: "b.pdf"}}, files)

	files, err = Store{Dir: filepath.Join(s.Dir, "nope")}.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindVideo, KindOf("video/mp4"))
	assert.Equal(t, KindAudio, KindOf("audio/ogg"))
	assert.Equal(t, KindDocument, KindOf("application/pdf"))
	assert.Equal(t, KindDocument, KindOf("text/plain; charset=utf-8"))
}

func TestSaveRenameDelete(t *testing.T) {
	s := Store{Dir: filepath.Join(t.TempDir(), "media")}
	require.NoError(t, s.Save("promo.txt", strings.NewReader("hello")))

	assert.ErrorIs(t, s.Save("../escape.txt", strings.NewReader("x")), ErrInvalidName)
	require.NoError(t, s.Save("other.txt", strings.NewReader("x")))
	assert.ErrorIs(t, s.Rename("promo.txt", "other.txt"), ErrExists)
	assert.ErrorIs(t, s.Rename("missing.txt", "new.txt"), fs.ErrNotExist)

	require.NoError(t, s.Rename("promo.txt", "offer.txt"))
	a, err := s.Open("offer.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(a.Data))
	_, err = s.Open("promo.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, s.Delete("offer.txt"))
	require.NoError(t, s.Delete("offer.txt"))
	files, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []File{{Name: "other.txt"}}, files)
}
