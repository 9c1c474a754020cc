package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"go.viam.com/test"
)

func createTestImage() *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50, 30, 100, 150)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func TestGetPointValuesInNeighborhood(t *testing.T) {
	// create test image
	rectImage := createTestImage()
	// testing cross neighborhood
	vals := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CrossIdx)
	// test length
	test.That(t, len(vals), test.ShouldEqual, 4)
	// test values at a corner of the rectangle
	test.That(t, vals[0], test.ShouldEqual, 255)
	test.That(t, vals[1], test.ShouldEqual, 255)
	test.That(t, vals[2], test.ShouldEqual, 0)
	test.That(t, vals[3], test.ShouldEqual, 0)
	// testing circle neighborhood
	valsCircle := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CircleIdx)
	// test length
	test.That(t, len(valsCircle), test.ShouldEqual, 16)
	// test values at a corner of the rectangle
	test.That(t, valsCircle[0], test.ShouldEqual, 0)
	test.That(t, valsCircle[1], test.ShouldEqual, 0)
	test.That(t, valsCircle[2], test.ShouldEqual, 0)
	test.That(t, valsCircle[3], test.ShouldEqual, 0)
	test.That(t, valsCircle[4], test.ShouldEqual, 255)
	test.That(t, valsCircle[5], test.ShouldEqual, 255)
	test.That(t, valsCircle[6], test.ShouldEqual, 255)
	test.That(t, valsCircle[7], test.ShouldEqual, 255)
	test.That(t, valsCircle[8], test.ShouldEqual, 255)
	for i := 9; i < len(valsCircle); i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
}

func TestIsValidSlice(t *testing.T) {
	tests := []struct {
		s        []float64
		n        int
		expected bool
	}{
		{[]float64{0, 0, 0, 0, 0}, 9, false},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 3, true},
		{[]float64{0, 1, 1, 1, 0, 1, 1}, 2, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 2, false},
		// the run may wrap around the circle
		{[]float64{1, 1, 0, 0, 0, 1, 1}, 4, true},
	}
	for _, tst := range tests {
		test.That(t, isValidSliceVals(tst.s, tst.n), test.ShouldEqual, tst.expected)
	}
}

func TestSumPositiveValues(t *testing.T) {
	test.That(t, sumOfPositiveValuesSlice([]float64{1, -2, 3, 0, 4}), test.ShouldEqual, 8)
	test.That(t, sumOfPositiveValuesSlice([]float64{-1, -2}), test.ShouldEqual, 0)
}

func TestSumNegativeValues(t *testing.T) {
	test.That(t, sumOfNegativeValuesSlice([]float64{1, -2, 3, 0, -4}), test.ShouldEqual, -6)
	test.That(t, sumOfNegativeValuesSlice([]float64{1, 2}), test.ShouldEqual, 0)
}

func TestComputeFAST(t *testing.T) {
	rectImage := createTestImage()
	cfg := DefaultFASTConfig()
	kps := ComputeFAST(rectImage, cfg)
	test.That(t, len(kps), test.ShouldBeLessThanOrEqualTo, cfg.MaxKeypoints)

	// the four rectangle corners, in raster order
	test.That(t, kps, test.ShouldResemble, KeyPoints{
		{50, 30}, {99, 30}, {50, 149}, {99, 149},
	})
}

func TestComputeFASTFlatImage(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	kps := ComputeFAST(flat, DefaultFASTConfig())
	test.That(t, len(kps), test.ShouldEqual, 0)
}

func TestNewFASTKeypointsFromImage(t *testing.T) {
	rectImage := createTestImage()
	cfg := DefaultFASTConfig()
	kps, err := NewFASTKeypointsFromImage(rectImage, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kps.IsOriented(), test.ShouldBeTrue)
	test.That(t, len(kps.Orientations), test.ShouldEqual, len(kps.Points))
	for _, o := range kps.Orientations {
		test.That(t, o, test.ShouldBeGreaterThanOrEqualTo, -math.Pi)
		test.That(t, o, test.ShouldBeLessThanOrEqualTo, math.Pi)
	}

	// the first keypoint is the top left corner; the bright mass lies down
	// and right of it, so its orientation points into that quadrant
	test.That(t, kps.Points[0], test.ShouldResemble, image.Point{50, 30})
	test.That(t, kps.Orientations[0], test.ShouldBeGreaterThan, 0)
	test.That(t, kps.Orientations[0], test.ShouldBeLessThan, math.Pi/2)

	cfg.Oriented = false
	unoriented, err := NewFASTKeypointsFromImage(rectImage, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, unoriented.IsOriented(), test.ShouldBeFalse)
}
