package images

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	MinContrast     = 0.5
	MaxContrast     = 2.0
	NeutralContrast = 1.0
)

// ContrastFactor maps a user contrast setting c to the slope of the
// remapping curve around mid-grey.
func ContrastFactor(c float64) float64 {
	return (259 * (255*c - 128)) / (255 * (259 - 255*c + 128))
}

// contrastTable precomputes v' = clamp(factor*(v-128)+128) for every channel value
func contrastTable(c float64) [256]uint8 {
	factor := ContrastFactor(c)
	var table [256]uint8
	for v := 0; v < 256; v++ {
		out := math.Round(factor*(float64(v)-128) + 128)
		if math.IsNaN(out) {
			// the curve has a pole near c=1.518; mid-grey stays put
			out = 128
		}
		table[v] = uint8(math.Max(0, math.Min(255, out)))
	}
	return table
}

// AdjustContrast applies contrast factor c to src and returns a freshly
// encoded image of the same dimensions. The neutral factor reuses the
// source encoding untouched.
func AdjustContrast(src *Source, c float64) (*Adjusted, error) {
	if src == nil {
		return nil, ErrEmptyImage
	}
	if math.IsNaN(c) || c < MinContrast || c > MaxContrast {
		return nil, fmt.Errorf("%w: %v outside [%v, %v]", ErrInvalidFactor, c, MinContrast, MaxContrast)
	}

	if c == NeutralContrast {
		return &Adjusted{Image: src.Image, Factor: c}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	table := contrastTable(c)
	out := imaging.AdjustFunc(img, func(px color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: table[px.R],
			G: table[px.G],
			B: table[px.B],
			A: px.A,
		}
	})

	format, mimeType := outputFormat(src.MIMEType)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("failed to encode adjusted image: %w", err)
	}

	bounds := out.Bounds()
	return &Adjusted{
		Image: Image{
			Data:     buf.Bytes(),
			MIMEType: mimeType,
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
		},
		Factor: c,
	}, nil
}

// outputFormat keeps JPEG sources as JPEG and encodes everything else as
// PNG so alpha survives.
func outputFormat(mimeType string) (imaging.Format, string) {
	if normalizeType(mimeType) == "image/jpeg" {
		return imaging.JPEG, "image/jpeg"
	}
	return imaging.PNG, "image/png"
}
