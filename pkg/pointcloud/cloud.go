package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/golang/geo/r3"
)

// Point is one coloured 3-D point in metres.
type Point struct {
	Position r3.Vector
	R, G, B  uint8
}

// PackedRGB returns the colour as 0x00RRGGBB, the PCD rgb field.
func (p Point) PackedRGB() int {
	return int(p.R)<<16 | int(p.G)<<8 | int(p.B)
}

// Cloud is an unorganized point cloud projected from a Width x Height depth
// map.
type Cloud struct {
	Width  int
	Height int
	Points []Point
}

// Len returns the number of points.
func (c *Cloud) Len() int {
	return len(c.Points)
}

// Bounds returns the axis-aligned bounding box. ok is false for an empty
// cloud.
func (c *Cloud) Bounds() (min, max r3.Vector, ok bool) {
	if len(c.Points) == 0 {
		return r3.Vector{}, r3.Vector{}, false
	}
	min = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, p := range c.Points {
		v := p.Position
		min = r3.Vector{X: math.Min(min.X, v.X), Y: math.Min(min.Y, v.Y), Z: math.Min(min.Z, v.Z)}
		max = r3.Vector{X: math.Max(max.X, v.X), Y: math.Max(max.Y, v.Y), Z: math.Max(max.Z, v.Z)}
	}
	return min, max, true
}

// Centroid returns the mean point position, or the origin for an empty cloud.
func (c *Cloud) Centroid() r3.Vector {
	if len(c.Points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range c.Points {
		sum = sum.Add(p.Position)
	}
	return sum.Mul(1 / float64(len(c.Points)))
}

// WritePCD writes the cloud as an ASCII PCD v0.7 file with x y z rgb fields.
func (c *Cloud) WritePCD(out io.Writer) error {
	w := bufio.NewWriter(out)

	_, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS x y z rgb\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F I\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA ascii\n",
		len(c.Points),
		len(c.Points),
	)
	if err != nil {
		return err
	}

	for _, p := range c.Points {
		_, err = fmt.Fprintf(w, "%f %f %f %d\n",
			p.Position.X, p.Position.Y, p.Position.Z, p.PackedRGB())
		if err != nil {
			return err
		}
	}
	return w.Flush()
}
