package features

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/example/agri-inference/internal/prediction"
	"github.com/example/agri-inference/internal/predictor"
)

// ImageInput is an uploaded image as raw encoded bytes.
type ImageInput struct {
	Data []byte
}

func (ImageInput) input() {}

// DefaultMaxImagePixels bounds the declared dimensions of an upload before
// it is decoded.
const DefaultMaxImagePixels = 40_000_000

// ImagePipeline decodes, resizes to Size x Size, adds a batch dimension and
// rescales intensities to [0,1]. MaxPixels defaults to DefaultMaxImagePixels.
type ImagePipeline struct {
	Size      int
	Layout    string
	MaxPixels int
}

// NewImagePipeline builds a pipeline from the image model's metadata.
func NewImagePipeline(meta predictor.Metadata) *ImagePipeline {
	return &ImagePipeline{Size: meta.ImageSize, Layout: meta.Layout}
}

// Transform implements Pipeline.
func (p *ImagePipeline) Transform(in Input) (predictor.FeatureVector, error) {
	img, ok := in.(ImageInput)
	if !ok {
		return predictor.FeatureVector{}, unexpectedInput("image", in)
	}
	if len(img.Data) == 0 {
		return predictor.FeatureVector{}, prediction.NewValidationError("img", "is empty")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return predictor.FeatureVector{}, &prediction.TransformError{Stage: "decode image", Err: err}
	}
	limit := p.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxImagePixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return predictor.FeatureVector{}, prediction.NewValidationError("img",
			fmt.Sprintf("is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, limit))
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return predictor.FeatureVector{}, &prediction.TransformError{Stage: "decode image", Err: err}
	}
	return p.FromImage(decoded)
}

// FromImage converts an already decoded image.
func (p *ImagePipeline) FromImage(img image.Image) (predictor.FeatureVector, error) {
	size := p.Size
	if size <= 0 {
		return predictor.FeatureVector{}, fmt.Errorf("invalid image size %d", size)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return predictor.FeatureVector{}, &prediction.TransformError{Stage: "decode image", Err: fmt.Errorf("image has no pixels")}
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor)
	bounds := resized.Bounds()
	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			b := float32(c.B) / 255.0

			pixel := y*size + x
			if p.Layout == predictor.LayoutNCHW {
				data[pixel] = r
				data[plane+pixel] = g
				data[2*plane+pixel] = b
			} else {
				data[3*pixel] = r
				data[3*pixel+1] = g
				data[3*pixel+2] = b
			}
		}
	}

	shape := []int64{1, int64(size), int64(size), 3}
	if p.Layout == predictor.LayoutNCHW {
		shape = []int64{1, 3, int64(size), int64(size)}
	}
	return predictor.FeatureVector{Data: data, Shape: shape}, nil
}
