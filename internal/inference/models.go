package inference

import (
	"fmt"
	"sort"
)

type ModelSize string

const (
	SizeTiny   ModelSize = "tiny"
	SizeSmall  ModelSize = "small"
	SizeMedium ModelSize = "medium"
	SizeFull   ModelSize = "full"

	DefaultModelSize = SizeTiny
)

type ModelOption struct {
	Size        ModelSize `json:"size"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Download    string    `json:"download"`
	Description string    `json:"description"`
}

var modelOptions = map[ModelSize]ModelOption{
	SizeTiny: {
		Size:        SizeTiny,
		ID:          "onnx-community/mobilenetv4_conv_small.e2400_r224_in1k",
		Name:        "Fast (10MB)",
		Download:    "10MB",
		Description: "Fastest download, good for quick scans",
	},
	SizeSmall: {
		Size:        SizeSmall,
		ID:          "onnx-community/mobilenetv3_small_100.lamb_in1k",
		Name:        "Balanced (15MB)",
		Download:    "15MB",
		Description: "Good balance of speed and accuracy",
	},
	SizeMedium: {
		Size:        SizeMedium,
		ID:          "Xenova/mobilevit-small",
		Name:        "Accurate (80MB)",
		Download:    "80MB",
		Description: "Better accuracy for detailed analysis",
	},
	SizeFull: {
		Size:        SizeFull,
		ID:          "Xenova/vit-base-patch16-224",
		Name:        "Best Quality (350MB)",
		Download:    "350MB",
		Description: "Highest accuracy, requires more download time",
	},
}

var sizeOrder = map[ModelSize]int{SizeTiny: 0, SizeSmall: 1, SizeMedium: 2, SizeFull: 3}

func ParseModelSize(s string) (ModelSize, error) {
	size := ModelSize(s)
	if _, ok := modelOptions[size]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
	return size, nil
}

func (s ModelSize) Option() ModelOption {
	return modelOptions[s]
}

// ModelOptions lists every variant from smallest to largest.
func ModelOptions() []ModelOption {
	opts := make([]ModelOption, 0, len(modelOptions))
	for _, o := range modelOptions {
		opts = append(opts, o)
	}
	sort.Slice(opts, func(i, j int) bool {
		return sizeOrder[opts[i].Size] < sizeOrder[opts[j].Size]
	})
	return opts
}
