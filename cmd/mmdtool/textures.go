package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/Faultbox/midgard-mmd/internal/assets"
	"github.com/Faultbox/midgard-mmd/internal/logger"
	"go.uber.org/zap"
)

func cmdTextures(args []string) error {
	fs := flag.NewFlagSet("textures", flag.ExitOnError)
	output := fs.String("o", "textures", "Output directory for converted textures")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireArgs(fs, 1, "textures <model.pmx>"); err != nil {
		return err
	}

	c, err := e.assets.LoadCharacter(e.ctx, fs.Arg(0), "")
	if err != nil {
		return err
	}

	for i, t := range c.Textures {
		status := fmt.Sprintf("%s %dx%d", t.Info.Format, t.Info.Width, t.Info.Height)
		if t.Placeholder {
			status = "MISSING"
		}
		fmt.Printf("  %3d  %-40s %s\n", i, t.Ref, status)
	}
	for _, miss := range c.Missing {
		fmt.Fprintf(os.Stderr, "warning: %v\n", miss)
	}
	if !e.cfg.Export.WebP {
		return nil
	}

	if err := os.MkdirAll(*output, 0755); err != nil {
		return err
	}
	converted := 0
	for _, t := range c.Textures {
		if t.Placeholder {
			continue
		}
		dst := filepath.Join(*output, webpName(t.Path))
		if err := convertTexture(t, dst, e.cfg.Export.TextureSize); err != nil {
			logger.Warn("texture conversion failed", zap.String("texture", t.Ref), zap.Error(err))
			continue
		}
		converted++
	}
	fmt.Printf("\nConverted %d of %d textures to %s\n", converted, len(c.Textures), *output)
	return nil
}

// webpName flattens a texture path into a single file name.
func webpName(p string) string {
	p = strings.TrimSuffix(p, filepath.Ext(p))
	return strings.NewReplacer("/", "_", "..", "_").Replace(p) + ".webp"
}

func convertTexture(t assets.Texture, dst string, limit int) error {
	img, err := assets.DecodeTexture(t.Data)
	if err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := assets.EncodeWebP(f, assets.ScaleToFit(img, limit)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// pngTextures re-encodes every available texture as PNG for embedding.
// Missing or undecodable textures yield nil entries.
func pngTextures(textures []assets.Texture, limit int) [][]byte {
	out := make([][]byte, len(textures))
	for i, t := range textures {
		if t.Placeholder {
			continue
		}
		img, err := assets.DecodeTexture(t.Data)
		if err != nil {
			logger.Warn("skipping texture", zap.String("texture", t.Ref), zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, assets.ScaleToFit(img, limit)); err != nil {
			logger.Warn("skipping texture", zap.String("texture", t.Ref), zap.Error(err))
			continue
		}
		out[i] = buf.Bytes()
	}
	return out
}
