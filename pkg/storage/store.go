// Package storage persists decoded frames, point cloud inputs and clouds,
// keyed by loop iteration.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/pointcloud"
)

// ErrWrite is returned when OpenCV refuses to write an image.
var ErrWrite = errors.New("image write failed")

// Store writes into one session directory.
type Store struct {
	dir     string
	written atomic.Uint64
}

// Open creates a new session directory under root, named with a random
// UUID.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage root is empty")
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the session directory.
func (s *Store) Dir() string {
	return s.dir
}

// Written returns the number of files written.
func (s *Store) Written() uint64 {
	return s.written.Load()
}

// ImagePath returns <dir>/<iteration>-<stream>.png.
func (s *Store) ImagePath(iteration uint64, stream frame.Stream) string {
	return s.path(iteration, stream.String()+".png")
}

// SaveImage writes a decoded frame as PNG.
func (s *Store) SaveImage(iteration uint64, stream frame.Stream, img gocv.Mat) error {
	return s.write(s.ImagePath(iteration, stream), img)
}

// SaveProjectionInputs writes what the point cloud was built from: the depth
// map as a 16-bit PGM and the backdrop as PNG.
func (s *Store) SaveProjectionInputs(iteration uint64, depth *frame.DepthMap, backdrop gocv.Mat) error {
	m, err := depth.Mat()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := s.write(s.path(iteration, "tmpImgDepth.pgm"), m); err != nil {
		return err
	}
	return s.write(s.path(iteration, "tmpImgRight.png"), backdrop)
}

// SaveCloud writes the cloud as <iteration>-cloud.pcd.
func (s *Store) SaveCloud(iteration uint64, cloud *pointcloud.Cloud) error {
	path := s.path(iteration, "cloud.pcd")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := cloud.WritePCD(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.written.Add(1)
	return nil
}

func (s *Store) path(iteration uint64, suffix string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d-%s", iteration, suffix))
}

func (s *Store) write(path string, img gocv.Mat) error {
	if img.Empty() {
		return fmt.Errorf("%w: %s: empty image", ErrWrite, path)
	}
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("%w: %s", ErrWrite, path)
	}
	s.written.Add(1)
	return nil
}
