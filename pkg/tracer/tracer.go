// Package tracer implements a small procedural path tracer: a gradient sky
// lighting a ground plane with one sphere per loaded chunk. It exists so the
// scheduler can be run end to end.
package tracer

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand"

	"github.com/df07/progressive-scheduler/pkg/scene"
)

// ErrTileBounds is returned for tiles that are not inside the canvas
var ErrTileBounds = errors.New("tracer: tile outside canvas")

// maxSpheres bounds the per-ray intersection cost for large chunk sets
const maxSpheres = 64

// Config contains tracer settings
type Config struct {
	MaxDepth    int  // Maximum bounces per path
	TopColor    Vec3 // Sky color at the zenith
	BottomColor Vec3 // Sky color at the horizon
}

// DefaultConfig returns sensible default values
func DefaultConfig() Config {
	return Config{
		MaxDepth:    4,
		TopColor:    NewVec3(0.5, 0.7, 1.0),
		BottomColor: NewVec3(1.0, 1.0, 1.0),
	}
}

// Tracer renders passes of the procedural world
type Tracer struct {
	config Config
}

// New creates a tracer
func New(config Config) *Tracer {
	config.MaxDepth = max(1, config.MaxDepth)
	return &Tracer{config: config}
}

type sphere struct {
	center Vec3
	radius float64
	albedo Vec3
}

type hit struct {
	t      float64
	point  Vec3
	normal Vec3
	albedo Vec3
}

// world is the per-tile view of a scene
type world struct {
	origin     Vec3
	lowerLeft  Vec3
	horizontal Vec3
	vertical   Vec3
	spheres    []sphere
	chunks     map[scene.ChunkPosition]bool
}

// RenderTile renders one pass over bounds. While path tracing each pixel gets
// samples paths; previews get a single direct lighting sample.
func (t *Tracer) RenderTile(sc *scene.Scene, bounds image.Rectangle, random *rand.Rand, samples int) error {
	if bounds.Empty() {
		return nil
	}
	if !bounds.In(image.Rect(0, 0, sc.Width, sc.Height)) {
		return fmt.Errorf("%w: %v not in %dx%d", ErrTileBounds, bounds, sc.Width, sc.Height)
	}

	w := newWorld(sc)
	pathTrace := sc.PathTrace()
	if !pathTrace {
		samples = 1
	}
	samples = max(1, samples)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var sum Vec3
			for s := 0; s < samples; s++ {
				u := (float64(x) + random.Float64()) / float64(sc.Width)
				v := 1 - (float64(y)+random.Float64())/float64(sc.Height)
				ray := w.ray(u, v)
				if pathTrace {
					sum = sum.Add(t.trace(w, ray, random))
				} else {
					sum = sum.Add(t.shade(w, ray))
				}
			}
			sc.Accumulate(x, y, sum.X, sum.Y, sum.Z, samples)
		}
	}
	return nil
}

// trace follows one path through the world
func (t *Tracer) trace(w *world, ray Ray, random *rand.Rand) Vec3 {
	throughput := NewVec3(1, 1, 1)
	for depth := 0; depth < t.config.MaxDepth; depth++ {
		h, ok := w.hit(ray)
		if !ok {
			return throughput.MultiplyVec(t.sky(ray.Direction))
		}
		throughput = throughput.MultiplyVec(h.albedo)
		ray = Ray{Origin: h.point, Direction: randomCosineDirection(h.normal, random)}
	}
	return Vec3{}
}

// shade computes a cheap noise free preview color
func (t *Tracer) shade(w *world, ray Ray) Vec3 {
	h, ok := w.hit(ray)
	if !ok {
		return t.sky(ray.Direction)
	}
	// Ambient plus sky facing term
	light := 0.3 + 0.7*math.Max(0, h.normal.Y)
	return h.albedo.Multiply(light)
}

// sky returns the gradient sky emission for a direction
func (t *Tracer) sky(direction Vec3) Vec3 {
	f := 0.5 * (direction.Normalize().Y + 1.0) // Map Y from [-1,1] to [0,1]
	return t.config.BottomColor.Multiply(1.0 - f).Add(t.config.TopColor.Multiply(f))
}

func newWorld(sc *scene.Scene) *world {
	cam := sc.Camera
	origin := NewVec3(cam.Position[0], cam.Position[1], cam.Position[2])

	fov := cam.FoV
	if fov <= 0 || fov >= 180 {
		fov = 70
	}
	yaw := cam.Yaw * math.Pi / 180
	pitch := cam.Pitch * math.Pi / 180

	// Yaw 0 looks down -Z
	forward := NewVec3(-math.Sin(yaw)*math.Cos(pitch), math.Sin(pitch), -math.Cos(yaw)*math.Cos(pitch))
	right := forward.Cross(NewVec3(0, 1, 0)).Normalize()
	if right.Length() == 0 {
		right = NewVec3(1, 0, 0)
	}
	up := right.Cross(forward)

	aspect := float64(sc.Width) / float64(max(1, sc.Height))
	halfHeight := math.Tan(fov * math.Pi / 360)
	halfWidth := aspect * halfHeight

	w := &world{
		origin:     origin,
		horizontal: right.Multiply(2 * halfWidth),
		vertical:   up.Multiply(2 * halfHeight),
		chunks:     make(map[scene.ChunkPosition]bool, len(sc.Chunks)),
	}
	w.lowerLeft = origin.Add(forward).Subtract(right.Multiply(halfWidth)).Subtract(up.Multiply(halfHeight))

	for i, c := range sc.Chunks {
		w.chunks[c] = true
		if i < maxSpheres {
			w.spheres = append(w.spheres, sphere{
				center: NewVec3(float64(c.X)*scene.ChunkSize+scene.ChunkSize/2, 2, float64(c.Z)*scene.ChunkSize+scene.ChunkSize/2),
				radius: 2,
				albedo: chunkColor(c),
			})
		}
	}
	if len(w.spheres) == 0 {
		w.spheres = append(w.spheres, sphere{center: NewVec3(0, 1, -5), radius: 1, albedo: NewVec3(0.8, 0.3, 0.3)})
	}
	return w
}

// ray returns the camera ray through normalized screen coordinates
func (w *world) ray(u, v float64) Ray {
	target := w.lowerLeft.Add(w.horizontal.Multiply(u)).Add(w.vertical.Multiply(v))
	return Ray{Origin: w.origin, Direction: target.Subtract(w.origin).Normalize()}
}

// hit finds the closest intersection with the ground plane or a sphere
func (w *world) hit(ray Ray) (hit, bool) {
	const tMin = 0.001
	closest := math.Inf(1)
	var rec hit
	found := false

	// Ground plane y = 0
	if math.Abs(ray.Direction.Y) > 1e-8 {
		if tp := -ray.Origin.Y / ray.Direction.Y; tp > tMin && tp < closest {
			closest = tp
			p := ray.At(tp)
			normal := NewVec3(0, 1, 0)
			if ray.Direction.Y > 0 {
				normal = NewVec3(0, -1, 0)
			}
			rec = hit{t: tp, point: p, normal: normal, albedo: w.groundColor(p)}
			found = true
		}
	}

	for _, s := range w.spheres {
		oc := ray.Origin.Subtract(s.center)
		a := ray.Direction.Dot(ray.Direction)
		halfB := oc.Dot(ray.Direction)
		c := oc.Dot(oc) - s.radius*s.radius
		discriminant := halfB*halfB - a*c
		if discriminant < 0 {
			continue
		}
		sqrtD := math.Sqrt(discriminant)
		root := (-halfB - sqrtD) / a
		if root < tMin || root > closest {
			root = (-halfB + sqrtD) / a
			if root < tMin || root > closest {
				continue
			}
		}
		closest = root
		p := ray.At(root)
		normal := p.Subtract(s.center).Multiply(1.0 / s.radius)
		if ray.Direction.Dot(normal) > 0 {
			normal = normal.Multiply(-1)
		}
		rec = hit{t: root, point: p, normal: normal, albedo: s.albedo}
		found = true
	}
	return rec, found
}

// groundColor checkers the ground per block; loaded chunks are green
func (w *world) groundColor(p Vec3) Vec3 {
	chunk := scene.ChunkPosition{
		X: int(math.Floor(p.X / scene.ChunkSize)),
		Z: int(math.Floor(p.Z / scene.ChunkSize)),
	}
	checker := (int(math.Floor(p.X))+int(math.Floor(p.Z)))&1 == 0

	base := NewVec3(0.5, 0.5, 0.5)
	if w.chunks[chunk] {
		base = NewVec3(0.35, 0.6, 0.3)
	}
	if checker {
		return base.Multiply(0.8)
	}
	return base
}

func chunkColor(c scene.ChunkPosition) Vec3 {
	h := uint32(c.X*73856093) ^ uint32(c.Z*19349663)
	return NewVec3(
		0.3+0.6*float64(h&0xff)/255,
		0.3+0.6*float64((h>>8)&0xff)/255,
		0.3+0.6*float64((h>>16)&0xff)/255,
	)
}
