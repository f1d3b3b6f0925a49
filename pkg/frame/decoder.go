package frame

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// Result is the output of one Decode call.
type Result struct {
	Stream Stream
	Image  Image

	// Depth is set for disparity frames, and for depth frames when the
	// device reports millimetres.
	Depth *DepthMap
}

// Close releases the image.
func (r *Result) Close() error {
	return r.Image.Close()
}

type decodeFunc func(d *Decoder, f RawFrame) (*Result, error)

// handlers is the dispatch table. Every Stream has exactly one entry; a test
// walks Streams() to keep it that way.
var handlers = [numStreams]decodeFunc{
	RGBPreview:     (*Decoder).decodePreview,
	RGBVideo:       (*Decoder).decodeVideo,
	Left:           (*Decoder).decodeMono,
	Right:          (*Decoder).decodeMono,
	RectifiedLeft:  (*Decoder).decodeMono,
	RectifiedRight: (*Decoder).decodeMono,
	Disparity:      (*Decoder).decodeDisparity,
	Depth:          (*Decoder).decodeDepth,
}

// Decoder is the per-session decoding context. It exclusively owns the
// cached rectified-right image and the iteration counter; it is meant to be
// driven from a single goroutine.
type Decoder struct {
	stereo stereo.Config

	depthTable  []uint16
	visualTable []uint8

	lastRectRight gocv.Mat
	hasRectRight  bool

	iteration uint64

	logger           *slog.Logger
	warnedDepthUnits bool
}

// NewDecoder creates a decoder for the sanitized form of cfg.
func NewDecoder(cfg stereo.Config) *Decoder {
	cfg = cfg.Sanitize()
	max := cfg.MaxDisparity()

	visual := make([]uint8, max+1)
	for v := range visual {
		visual[v] = cfg.VisualLevel(uint16(v))
	}

	return &Decoder{
		stereo:      cfg,
		depthTable:  cfg.DepthTable(max),
		visualTable: visual,
		logger:      log.Component("decoder"),
	}
}

// Config returns the effective stereo configuration.
func (d *Decoder) Config() stereo.Config {
	return d.stereo
}

// Iteration returns the current loop iteration.
func (d *Decoder) Iteration() uint64 {
	return d.iteration
}

// Advance moves to the next iteration and returns it.
func (d *Decoder) Advance() uint64 {
	d.iteration++
	return d.iteration
}

// LastRectifiedRight returns the most recent rectified-right image. The
// matrix stays owned by the decoder and is valid until the next
// rectified-right frame or Close; callers must not modify or close it.
func (d *Decoder) LastRectifiedRight() (gocv.Mat, bool) {
	return d.lastRectRight, d.hasRectRight
}

// Close releases the cached image.
func (d *Decoder) Close() error {
	if !d.hasRectRight {
		return nil
	}
	d.hasRectRight = false
	return d.lastRectRight.Close()
}

// Decode converts f according to its stream. Shape mismatches return an
// error wrapping ErrShape.
func (d *Decoder) Decode(f RawFrame) (*Result, error) {
	if !f.Stream.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStream, f.Stream)
	}
	return handlers[f.Stream](d, f)
}

// decodePreview reorders planar 3xHxW into interleaved HxWx3, keeping the
// channel order as delivered.
func (d *Decoder) decodePreview(f RawFrame) (*Result, error) {
	plane := f.Width * f.Height
	if err := checkSize(f, "planar 3x8-bit", 3*plane); err != nil {
		return nil, err
	}

	packed := make([]byte, 3*plane)
	for i := 0; i < plane; i++ {
		packed[3*i] = f.Data[i]
		packed[3*i+1] = f.Data[plane+i]
		packed[3*i+2] = f.Data[2*plane+i]
	}

	m, err := matFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, packed)
	if err != nil {
		return nil, err
	}
	return &Result{Stream: f.Stream, Image: Image{Mat: m, Format: BGR8}}, nil
}

// decodeVideo converts NV12 (Y plane plus interleaved UV at half height).
func (d *Decoder) decodeVideo(f RawFrame) (*Result, error) {
	if f.Width%2 != 0 || f.Height%2 != 0 {
		return nil, &ShapeError{Stream: f.Stream, Width: f.Width, Height: f.Height,
			Layout: "NV12 (odd size)", Want: f.Width * f.Height * 3 / 2, Got: len(f.Data)}
	}
	if err := checkSize(f, "NV12", f.Width*f.Height*3/2); err != nil {
		return nil, err
	}

	yuv, err := matFromBytes(f.Height*3/2, f.Width, gocv.MatTypeCV8UC1, f.Data)
	if err != nil {
		return nil, err
	}
	defer yuv.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(yuv, &bgr, gocv.ColorYUVToBGRNV12)
	return &Result{Stream: f.Stream, Image: Image{Mat: bgr, Format: BGR8}}, nil
}

// decodeMono passes a single 8-bit channel through, refreshing the
// rectified-right cache when it applies.
func (d *Decoder) decodeMono(f RawFrame) (*Result, error) {
	if err := checkSize(f, "8-bit", f.Width*f.Height); err != nil {
		return nil, err
	}

	m, err := matFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, f.Data)
	if err != nil {
		return nil, err
	}

	if f.Stream == RectifiedRight {
		if d.hasRectRight {
			d.lastRectRight.Close()
		}
		d.lastRectRight = m.Clone()
		d.hasRectRight = true
	}

	return &Result{Stream: f.Stream, Image: Image{Mat: m, Format: Gray8}}, nil
}

// decodeDepth reinterprets little-endian 16-bit samples.
func (d *Decoder) decodeDepth(f RawFrame) (*Result, error) {
	if err := checkSize(f, "16-bit", 2*f.Width*f.Height); err != nil {
		return nil, err
	}

	samples := readUint16(f.Data)
	m, err := matFromUint16(f.Height, f.Width, samples)
	if err != nil {
		return nil, err
	}
	res := &Result{Stream: f.Stream, Image: Image{Mat: m, Format: Gray16}}

	// With left-right check, extended or subpixel the device sends FP16 on
	// this stream. Only plain U16 is millimetres.
	if d.stereo.NeedsMedianOff() {
		if !d.warnedDepthUnits {
			d.logger.Warn("depth stream is not in millimetres with optional stereo modes; passing raw samples through",
				"config", d.stereo.String())
			d.warnedDepthUnits = true
		}
		return res, nil
	}

	res.Depth = &DepthMap{Width: f.Width, Height: f.Height, Data: samples}
	return res, nil
}

// decodeDisparity reconstructs metric depth and a colour-mapped view.
func (d *Decoder) decodeDisparity(f RawFrame) (*Result, error) {
	width := d.stereo.DisparityBytes()
	switch f.Type {
	case TypeRAW8:
		width = 1
	case TypeRAW16:
		width = 2
	case TypeUnset:
	default:
		return nil, &ShapeError{Stream: f.Stream, Width: f.Width, Height: f.Height,
			Layout: f.Type.String(), Want: width * f.Width * f.Height, Got: len(f.Data)}
	}

	layout := "8-bit"
	if width == 2 {
		layout = "16-bit"
	}
	if err := checkSize(f, layout, width*f.Width*f.Height); err != nil {
		return nil, err
	}

	var disp []uint16
	if width == 2 {
		disp = readUint16(f.Data)
	} else {
		disp = make([]uint16, len(f.Data))
		for i, b := range f.Data {
			disp[i] = uint16(b)
		}
	}

	depth := &DepthMap{Width: f.Width, Height: f.Height, Data: make([]uint16, len(disp))}
	visual := make([]byte, len(disp))
	for i, v := range disp {
		if int(v) < len(d.depthTable) {
			depth.Data[i] = d.depthTable[v]
			visual[i] = d.visualTable[v]
			continue
		}
		depth.Data[i], _ = d.stereo.DepthFromDisparity(v)
		visual[i] = 255
	}

	gray, err := matFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, visual)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	colored := gocv.NewMat()
	gocv.ApplyColorMap(gray, &colored, gocv.ColormapHot)

	return &Result{
		Stream: f.Stream,
		Image:  Image{Mat: colored, Format: BGR8},
		Depth:  depth,
	}, nil
}

func readUint16(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return out
}
