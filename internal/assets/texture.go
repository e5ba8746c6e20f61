package assets

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"strings"

	"github.com/Faultbox/midgard-mmd/pkg/encoding"
	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
)

// TextureInfo describes a texture file without decoding its pixels.
type TextureInfo struct {
	Format string // png, jpeg, bmp or tga
	Width  int
	Height int
}

type textureCodec struct {
	name         string
	magic        string
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
}

// TGA has no signature and is tried last. Sphere maps (.spa, .sph) are
// bitmaps.
var textureCodecs = []textureCodec{
	{"png", "\x89PNG", png.Decode, png.DecodeConfig},
	{"jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig},
	{"bmp", "BM", bmp.Decode, bmp.DecodeConfig},
	{"tga", "", tga.Decode, tga.DecodeConfig},
}

func sniffTexture(data []byte) textureCodec {
	for _, c := range textureCodecs {
		if bytes.HasPrefix(data, []byte(c.magic)) {
			return c
		}
	}
	return textureCodecs[len(textureCodecs)-1]
}

// ProbeTexture reads the image header of data.
func ProbeTexture(data []byte) (TextureInfo, error) {
	c := sniffTexture(data)
	cfg, err := c.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return TextureInfo{}, fmt.Errorf("probing %s texture: %w", c.name, err)
	}
	return TextureInfo{Format: c.name, Width: cfg.Width, Height: cfg.Height}, nil
}

// DecodeTexture decodes data into an NRGBA image.
func DecodeTexture(data []byte) (*image.NRGBA, error) {
	c := sniffTexture(data)
	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s texture: %w", c.name, err)
	}
	if n, ok := img.(*image.NRGBA); ok {
		return n, nil
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// ScaleToFit shrinks img so neither side exceeds limit, keeping the aspect
// ratio. Images already within bounds are returned unchanged.
func ScaleToFit(img *image.NRGBA, limit int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit <= 0 || (w <= limit && h <= limit) {
		return img
	}
	if w >= h {
		h = limit * h / w
		w = limit
	} else {
		w = limit * w / h
		h = limit
	}
	dst := image.NewNRGBA(image.Rect(0, 0, max1(w), max1(h)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// EncodeWebP writes img as lossless WebP.
func EncodeWebP(w io.Writer, img image.Image) error {
	if err := nativewebp.Encode(w, img, nil); err != nil {
		return fmt.Errorf("encoding webp: %w", err)
	}
	return nil
}

// TexturePath resolves a texture reference from a model file against the
// model's directory, returning a normalized path.
func TexturePath(modelPath, ref string) string {
	ref = strings.ReplaceAll(ref, "\\", "/")
	dir := path.Dir(strings.ReplaceAll(modelPath, "\\", "/"))
	return encoding.NormalizePath(path.Join(dir, ref))
}
