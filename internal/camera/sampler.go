package camera

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/oszuidwest/drowsiguard/internal/util"
)

// Sampled frame geometry sent to the inference service.
const (
	SampleWidth   = 320
	SampleHeight  = 240
	sampleQuality = 80
)

// Downscale re-encodes a JPEG frame at width x height. Frames that already
// have the target size are returned unchanged.
func Downscale(frame []byte, width, height int) ([]byte, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return nil, util.WrapError("read frame header", err)
	}
	if cfg.Width == width && cfg.Height == height {
		return frame, nil
	}

	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, util.WrapError("decode frame", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: sampleQuality}); err != nil {
		return nil, util.WrapError("encode frame", err)
	}
	return buf.Bytes(), nil
}
