package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// BorderPad is the policy for filling pixels outside the source image when
// padding it for a convolution.
type BorderPad int

const (
	// BorderConstant fills the border with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate fills the border with the nearest edge pixel.
	BorderReplicate
	// BorderReflect mirrors the image across its edge.
	BorderReflect
)

// paddingSizes computes the padding on each side for a kernel of kernelSize
// anchored at anchor.
func paddingSizes(kernelSize, anchor image.Point) (left, right, top, bottom int, err error) {
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= kernelSize.X || anchor.Y >= kernelSize.Y {
		return 0, 0, 0, 0, errors.Errorf("anchor %v out of kernel bounds %v", anchor, kernelSize)
	}
	left = anchor.X
	top = anchor.Y
	right = kernelSize.X - anchor.X - 1
	bottom = kernelSize.Y - anchor.Y - 1
	return left, right, top, bottom, nil
}

// PaddingGray pads a grayscale image for a convolution with a kernel of
// kernelSize anchored at anchor, filling the new border per the given policy.
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	left, right, top, bottom, err := paddingSizes(kernelSize, anchor)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	padded := image.NewGray(image.Rect(0, 0, w+left+right, h+top+bottom))

	for y := 0; y < h+top+bottom; y++ {
		for x := 0; x < w+left+right; x++ {
			sx, sy := x-left, y-top
			switch border {
			case BorderConstant:
				if sx < 0 || sy < 0 || sx >= w || sy >= h {
					padded.SetGray(x, y, color.Gray{0})
					continue
				}
			case BorderReplicate:
				sx = clampIdx(sx, 0, w-1)
				sy = clampIdx(sy, 0, h-1)
			case BorderReflect:
				sx = reflectIdx(sx, w)
				sy = reflectIdx(sy, h)
			default:
				return nil, errors.Errorf("unsupported border type %d", border)
			}
			padded.SetGray(x, y, img.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return padded, nil
}

func clampIdx(i, min, max int) int {
	if i < min {
		return min
	}
	if i > max {
		return max
	}
	return i
}

func reflectIdx(i, n int) int {
	if i < 0 {
		i = -i - 1
	}
	if i >= n {
		i = 2*n - i - 1
	}
	return clampIdx(i, 0, n-1)
}
