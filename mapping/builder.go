// Package mapping accumulates odometry output into an occupancy raster and a
// bounded 3D point cloud. The raster is a trajectory trace, not a true
// occupancy-from-sensor-model map.
package mapping

import (
	"image"
	"image/color"
	"math/rand"
	"sync"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lobo-robotics/rover/imu"
	"github.com/lobo-robotics/rover/pointcloud"
	"github.com/lobo-robotics/rover/rimage"
	"github.com/lobo-robotics/rover/utils"
)

// Pose2D is the rover position in world units plus its accumulated heading
// in degrees. The map builder owns the single authoritative instance.
type Pose2D struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Config holds the map builder parameters.
type Config struct {
	// RasterSize is the fixed width and height of the occupancy raster in
	// cells. The raster never shrinks or reallocates after initialization.
	RasterSize int `json:"raster_size"`
	// PixelsPerUnit projects world units onto raster cells.
	PixelsPerUnit float64 `json:"pixels_per_unit"`
	// MaxPoints bounds the 3D point cloud.
	MaxPoints int `json:"max_points"`
	// PointsPerUpdate is how many synthetic jittered points each odometry
	// update contributes.
	PointsPerUpdate int `json:"points_per_update"`
	// JitterSigma is the standard deviation of the x/y point jitter, in
	// world units; the z jitter uses half of it.
	JitterSigma float64 `json:"jitter_sigma"`
}

// DefaultConfig returns the map parameters used by the perception pipeline:
// a 200x200 raster at 20 cells per world unit.
func DefaultConfig() *Config {
	return &Config{
		RasterSize:      200,
		PixelsPerUnit:   20,
		MaxPoints:       pointcloud.DefaultMaxPoints,
		PointsPerUpdate: 5,
		JitterSigma:     0.1,
	}
}

// Snapshot is a read-only copy of the map state. The raster is encoded as
// PNG lazily, only when a snapshot is requested.
type Snapshot struct {
	RasterPNG   []byte
	Points      []pointcloud.Point
	Pose        Pose2D
	Orientation imu.Orientation
}

// Builder accumulates pose, trajectory raster and point cloud.
type Builder struct {
	mu          sync.Mutex
	cfg         *Config
	raster      *image.Gray
	cloud       *pointcloud.Cloud
	pose        Pose2D
	orientation imu.Orientation

	// encoded caches the PNG raster between mutations.
	encoded []byte
	dirty   bool

	jitter distuv.Normal
	rnd    *rand.Rand
	logger golog.Logger
}

// NewBuilder returns a Builder with an initialized diagnostic raster.
func NewBuilder(cfg *Config, logger golog.Logger) *Builder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	b := &Builder{
		cfg:    cfg,
		raster: newDiagnosticRaster(cfg.RasterSize),
		cloud:  pointcloud.NewBounded(cfg.MaxPoints),
		rnd:    rand.New(rand.NewSource(rand.Int63())),
		logger: logger,
		dirty:  true,
	}
	b.jitter = distuv.Normal{Mu: 0, Sigma: cfg.JitterSigma}
	return b
}

// newDiagnosticRaster draws the start-up grid and center marker so an empty
// map is visibly a map and not a dead stream.
func newDiagnosticRaster(size int) *image.Gray {
	dc := gg.NewContext(size, size)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	// faint grid every 20 cells
	dc.SetRGB255(40, 40, 40)
	dc.SetLineWidth(1)
	for i := 0; i <= size; i += 20 {
		dc.DrawLine(float64(i), 0, float64(i), float64(size))
		dc.DrawLine(0, float64(i), float64(size), float64(i))
	}
	dc.Stroke()

	// center marker
	c := float64(size) / 2
	dc.SetRGB255(128, 128, 128)
	dc.DrawLine(c-4, c, c+4, c)
	dc.DrawLine(c, c-4, c, c+4)
	dc.Stroke()

	return rimage.MakeGray(dc.Image())
}

// Pose returns a copy of the current pose.
func (b *Builder) Pose() Pose2D {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pose
}

// SetOrientation stores the latest attitude so snapshots carry it. The
// orientation updates at the inertial cadence, faster than odometry.
func (b *Builder) SetOrientation(o imu.Orientation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orientation = o
	b.pose.Heading = o.Yaw
}

// ApplyDisplacement folds an odometry displacement (world units) into the
// pose, traces it on the raster and contributes jittered points to the cloud.
func (b *Builder) ApplyDisplacement(dx, dy float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pose.X += dx
	b.pose.Y += dy

	b.markTrajectory()
	b.addPoints()
	b.dirty = true
}

// markTrajectory projects the pose onto the raster, clamped to its bounds,
// and draws a point plus a short crosshair.
func (b *Builder) markTrajectory() {
	size := b.cfg.RasterSize
	cx := utils.ClampInt(size/2+int(b.pose.X*b.cfg.PixelsPerUnit), 0, size-1)
	cy := utils.ClampInt(size/2+int(b.pose.Y*b.cfg.PixelsPerUnit), 0, size-1)

	b.raster.SetGray(cx, cy, color.Gray{255})
	for d := 1; d <= 2; d++ {
		b.raster.SetGray(utils.ClampInt(cx+d, 0, size-1), cy, color.Gray{200})
		b.raster.SetGray(utils.ClampInt(cx-d, 0, size-1), cy, color.Gray{200})
		b.raster.SetGray(cx, utils.ClampInt(cy+d, 0, size-1), color.Gray{200})
		b.raster.SetGray(cx, utils.ClampInt(cy-d, 0, size-1), color.Gray{200})
	}
}

// addPoints contributes PointsPerUpdate Gaussian-jittered points around the
// new position, all sharing one random color per update.
func (b *Builder) addPoints() {
	hue := b.rnd.Float64() * 360
	cc := colorful.Hsv(hue, 0.85, 0.95)
	r8, g8, b8 := cc.Clamped().RGB255()
	pc := color.NRGBA{R: r8, G: g8, B: b8, A: 255}

	for i := 0; i < b.cfg.PointsPerUpdate; i++ {
		x := b.pose.X + b.jitter.Rand()
		y := b.pose.Y + b.jitter.Rand()
		z := b.jitter.Rand() / 2
		b.cloud.Add(pointcloud.NewPoint(x, y, z, pc))
	}
}

// Snapshot returns a read-only copy of the map state. The raster is
// re-encoded only if it was mutated since the last snapshot, bounding encode
// cost to the publish cadence rather than the mutation cadence.
func (b *Builder) Snapshot() (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dirty || b.encoded == nil {
		encoded, err := rimage.EncodePNG(b.raster)
		if err != nil {
			return Snapshot{}, err
		}
		b.encoded = encoded
		b.dirty = false
	}
	return Snapshot{
		RasterPNG:   b.encoded,
		Points:      b.cloud.Points(),
		Pose:        b.pose,
		Orientation: b.orientation,
	}, nil
}

// PointCount returns the current point cloud size.
func (b *Builder) PointCount() int {
	return b.cloud.Size()
}
