package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/icza/mjpeg"
)

// CreateTimelapse assembles the per-year preview images into an AVI, one
// year per frame, each captioned with its file name stem.
func CreateTimelapse(imagePaths []string, outputPath string) error {
	if len(imagePaths) == 0 {
		return fmt.Errorf("no preview images to assemble")
	}
	if !strings.Contains(outputPath, ".avi") {
		outputPath += ".avi"
	}

	frames := make([]image.Image, 0, len(imagePaths))
	for _, path := range imagePaths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return err
		}
		frames = append(frames, caption(img, frameLabel(path)))
	}

	bounds := frames[0].Bounds()
	writer, err := mjpeg.New(outputPath, int32(bounds.Dx()), int32(bounds.Dy()), 2)
	if err != nil {
		return err
	}
	defer writer.Close()

	for _, frame := range frames {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 100}); err != nil {
			return err
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func frameLabel(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// caption stamps the label into the top left corner, shadowed so it stays
// readable over water and land alike.
func caption(img image.Image, label string) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetRGB(0, 0, 0)
	dc.DrawString(label, 7, 15)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(label, 6, 14)
	return dc.Image()
}
