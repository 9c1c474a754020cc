package rimage

// GetGaussian3 returns the Kernel corresponding to a 3x3 Gaussian blur.
func GetGaussian3() Kernel {
	return Kernel{[][]float64{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	},
		3,
		3,
	}
}

// GetGaussian5 returns the Kernel corresponding to a 5x5 Gaussian blur.
func GetGaussian5() Kernel {
	return Kernel{[][]float64{
		{1, 4, 6, 4, 1},
		{4, 16, 24, 16, 4},
		{6, 24, 36, 24, 6},
		{4, 16, 24, 16, 4},
		{1, 4, 6, 4, 1},
	},
		5,
		5,
	}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	},
		3,
		3,
	}
}
