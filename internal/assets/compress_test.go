package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// noisyPNG renders random pixels so the PNG does not compress to nothing.
func noisyPNG(t *testing.T, size int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRecompressPassesSmallContentThrough(t *testing.T) {
	content := noisyPNG(t, 16)
	out, name := Recompress(content, "photo.png", int64(len(content)), zap.NewNop())
	require.Equal(t, content, out)
	require.Equal(t, "photo.png", name)
}

func TestRecompressPassesNonImageThrough(t *testing.T) {
	content := bytes.Repeat([]byte("definitely not an image "), 100)
	out, name := Recompress(content, "report.pdf", 10, zap.NewNop())
	require.Equal(t, content, out)
	require.Equal(t, "report.pdf", name)
}

func TestRecompressReencodesOversizedPNG(t *testing.T) {
	content := noisyPNG(t, 64)
	out, name := Recompress(content, "big photo.png", 64, zap.NewNop())

	require.Equal(t, "big photo.jpg", name)
	require.NotEqual(t, content, out)

	// The output is a decodable JPEG.
	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
}

func TestRecompressStopsAtQualityFloor(t *testing.T) {
	// Random noise cannot possibly fit a 1-byte budget; the loop must
	// still terminate and return the floor-quality encoding.
	content := noisyPNG(t, 64)
	out, name := Recompress(content, "noise.png", 1, zap.NewNop())
	require.Equal(t, "noise.jpg", name)
	require.NotEmpty(t, out)
}
