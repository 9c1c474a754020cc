package keypoints

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/lobo-robotics/rover/rimage"
)

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	Layers          int          `json:"n_layers"`
	DownscaleFactor int          `json:"downscale_factor"`
	FastConf        *FASTConfig  `json:"fast"`
	BRIEFConf       *BRIEFConfig `json:"brief"`
}

// DefaultORBConfig returns the ORB parameters used by the perception pipeline.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Layers:          2,
		DownscaleFactor: 2,
		FastConf:        DefaultFASTConfig(),
		BRIEFConf:       DefaultBRIEFConfig(),
	}
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.Layers < 1 {
		return goutils.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.DownscaleFactor <= 1 {
		return goutils.NewConfigValidationError(path, errors.New("downscale_factor should be greater than 1"))
	}
	if config.FastConf == nil {
		return goutils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if config.BRIEFConf == nil {
		return goutils.NewConfigValidationFieldRequiredError(path, "brief")
	}
	return nil
}

// ImagePyramid contains the successively downscaled versions of an image.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []int
}

// GetImagePyramid computes the pyramid of an image, downscaling by factor at
// every octave until a dimension would drop below the FAST circle diameter.
func GetImagePyramid(im *image.Gray, factor int) (*ImagePyramid, error) {
	if factor <= 1 {
		return nil, errors.Errorf("downscale factor should be greater than 1, got %d", factor)
	}
	images := []*image.Gray{im}
	scales := []int{1}
	current := im
	scale := 1
	for {
		bounds := current.Bounds()
		w, h := bounds.Dx()/factor, bounds.Dy()/factor
		if w < 7 || h < 7 {
			break
		}
		resized := imaging.Resize(current, w, h, imaging.Box)
		gray := rimage.MakeGray(resized)
		images = append(images, gray)
		scale *= factor
		scales = append(scales, scale)
		current = gray
	}
	return &ImagePyramid{
		Images: images,
		Scales: scales,
	}, nil
}

// ComputeORBKeypoints computes ORB keypoints on a gray image. The same sample
// pairs sp must be used for every descriptor set that gets matched together.
func ComputeORBKeypoints(im *image.Gray, sp *SamplePairs, cfg *ORBConfig) (Descriptors, KeyPoints, error) {
	pyramid, err := GetImagePyramid(im, cfg.DownscaleFactor)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Layers <= 0 {
		return nil, nil, errors.New("number of layers should be > 0")
	}
	if len(pyramid.Scales) < cfg.Layers {
		return nil, nil, errors.New("more layers than actual number of octaves in image pyramid")
	}
	orbDescriptors := make(Descriptors, 0)
	orbPoints := make(KeyPoints, 0)
	for i := 0; i < cfg.Layers; i++ {
		currentImage := pyramid.Images[i]
		currentScale := pyramid.Scales[i]
		fastKps, err := NewFASTKeypointsFromImage(currentImage, cfg.FastConf)
		if err != nil {
			return nil, nil, err
		}
		descs, err := ComputeBRIEFDescriptors(currentImage, sp, fastKps, cfg.BRIEFConf)
		if err != nil {
			return nil, nil, err
		}
		orbDescriptors = append(orbDescriptors, descs...)
		orbPoints = append(orbPoints, RescaleKeypoints(fastKps.Points, currentScale)...)
	}
	return orbDescriptors, orbPoints, nil
}
