package onnx

import (
	"encoding/json"
	"fmt"
	"image"
	"os"

	"golang.org/x/image/draw"
)

// preprocessor mirrors the fields of preprocessor_config.json that image
// classifiers use.
type preprocessor struct {
	DoResize           *bool           `json:"do_resize"`
	Size               json.RawMessage `json:"size"`
	DoCenterCrop       bool            `json:"do_center_crop"`
	CropSize           json.RawMessage `json:"crop_size"`
	DoRescale          *bool           `json:"do_rescale"`
	RescaleFactor      *float64        `json:"rescale_factor"`
	DoNormalize        *bool           `json:"do_normalize"`
	ImageMean          []float64       `json:"image_mean"`
	ImageStd           []float64       `json:"image_std"`
	DoFlipChannelOrder bool            `json:"do_flip_channel_order"`
}

type dims struct {
	width, height, shortestEdge int
}

func loadPreprocessor(path string) (*preprocessor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p preprocessor
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// parseDims accepts an int, {"height","width"} or {"shortest_edge"}.
func parseDims(raw json.RawMessage) (dims, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return dims{}, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return dims{width: n, height: n}, nil
	}

	var obj struct {
		Height       int `json:"height"`
		Width        int `json:"width"`
		ShortestEdge int `json:"shortest_edge"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return dims{}, fmt.Errorf("invalid size %s: %w", raw, err)
	}
	return dims{width: obj.Width, height: obj.Height, shortestEdge: obj.ShortestEdge}, nil
}

// inputSize is the square or rectangular tensor size the model expects,
// taken from the crop size when cropping and the resize size otherwise.
func (p *preprocessor) inputSize() (int, int, error) {
	size, err := parseDims(p.Size)
	if err != nil {
		return 0, 0, err
	}
	if p.DoCenterCrop {
		crop, err := parseDims(p.CropSize)
		if err != nil {
			return 0, 0, err
		}
		if crop.width > 0 && crop.height > 0 {
			return crop.width, crop.height, nil
		}
	}
	if size.width > 0 && size.height > 0 {
		return size.width, size.height, nil
	}
	if size.shortestEdge > 0 {
		return size.shortestEdge, size.shortestEdge, nil
	}
	return 224, 224, nil
}

// fill resizes img and writes it into dst as NCHW float32 for a w×h input.
func (p *preprocessor) fill(img image.Image, w, h int, dst []float32) error {
	if len(dst) != 3*w*h {
		return fmt.Errorf("tensor has %d elements, want %d", len(dst), 3*w*h)
	}

	resized := p.resize(img, w, h)

	scale := 1.0 / 255.0
	if p.RescaleFactor != nil {
		scale = *p.RescaleFactor
	}
	if p.DoRescale != nil && !*p.DoRescale {
		scale = 1
	}

	mean := []float64{0, 0, 0}
	std := []float64{1, 1, 1}
	if p.DoNormalize == nil || *p.DoNormalize {
		if len(p.ImageMean) == 3 {
			mean = p.ImageMean
		}
		if len(p.ImageStd) == 3 {
			std = p.ImageStd
		}
	}

	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			px := [3]float64{float64(r >> 8), float64(g >> 8), float64(b >> 8)}
			if p.DoFlipChannelOrder {
				px[0], px[2] = px[2], px[0]
			}
			i := y*w + x
			for c := 0; c < 3; c++ {
				dst[c*plane+i] = float32((px[c]*scale - mean[c]) / std[c])
			}
		}
	}
	return nil
}

func (p *preprocessor) resize(img image.Image, w, h int) *image.RGBA {
	src := img.Bounds()
	size, _ := parseDims(p.Size)

	if !p.DoCenterCrop || size.shortestEdge == 0 {
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(out, out.Bounds(), img, src, draw.Src, nil)
		return out
	}

	// scale the short side to shortest_edge, then crop the centre
	sw, sh := size.shortestEdge, size.shortestEdge
	if src.Dx() > src.Dy() {
		sw = src.Dx() * size.shortestEdge / src.Dy()
	} else {
		sh = src.Dy() * size.shortestEdge / src.Dx()
	}
	if sw < w {
		sw = w
	}
	if sh < h {
		sh = h
	}

	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, src, draw.Src, nil)

	x0 := (sw - w) / 2
	y0 := (sh - h) / 2
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Copy(out, image.Point{}, scaled, image.Rect(x0, y0, x0+w, y0+h), draw.Src, nil)
	return out
}
