package snapshot

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/rov-video/internal/frame"
)

func testFrame() frame.Frame {
	return frame.Frame{
		Seq:       42,
		Timestamp: time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
		Width:     2,
		Height:    1,
		Format:    frame.RGB,
		Data:      []byte{255, 0, 0, 0, 0, 255},
	}
}

func TestImage(t *testing.T) {
	img, err := Image(testFrame())
	require.NoError(t, err)

	assert.Equal(t, []uint8{255, 0, 0, 255, 0, 0, 255, 255}, img.Pix)

	_, err = Image(frame.Frame{})
	assert.ErrorIs(t, err, ErrEmptyFrame)

	short := testFrame()
	short.Data = short.Data[:3]
	_, err = Image(short)
	assert.Error(t, err)
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shots", "a.png")
	require.NoError(t, Save(path, testFrame(), Options{}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	r, g, b, _ := img.At(1, 0).RGBA()
	assert.Equal(t, []uint32{0, 0, 0xffff}, []uint32{r, g, b})
}

func TestSaveJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, Save(path, testFrame(), Options{Quality: 80, Brightness: 0.1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, data[:2], "JPEG SOI marker")
}

func TestName(t *testing.T) {
	name := Name("rov", testFrame())
	assert.Equal(t, "rov-20240102-150405.000-000042.jpg", name)
	assert.True(t, strings.HasPrefix(Name("x", frame.Frame{}), "x-"))
}
