package frame

import (
	"testing"

	"github.com/teslashibe/go-oakd/pkg/stereo"
)

func TestDepthMap_AtAndSet(t *testing.T) {
	dm := NewDepthMap(4, 3)
	if dm.ValidCount() != 0 {
		t.Fatalf("new map should be empty, got %d valid", dm.ValidCount())
	}

	dm.Set(3, 2, 1500)
	if mm, ok := dm.At(3, 2); !ok || mm != 1500 {
		t.Errorf("At(3,2) = %d, %t", mm, ok)
	}
	if _, ok := dm.At(0, 0); ok {
		t.Error("unset pixel reported as valid")
	}

	for _, p := range [][2]int{{-1, 0}, {0, -1}, {4, 0}, {0, 3}} {
		if mm, ok := dm.At(p[0], p[1]); ok || mm != stereo.NoDepth {
			t.Errorf("At%v out of bounds = %d, %t", p, mm, ok)
		}
	}
}

func TestDepthMap_Stats(t *testing.T) {
	dm := &DepthMap{Width: 3, Height: 2, Data: []uint16{0, 1000, 2000, 0, 3000, 0}}

	st := dm.Stats()
	if st.Valid != 3 {
		t.Errorf("Valid = %d, want 3", st.Valid)
	}
	if st.Coverage != 0.5 {
		t.Errorf("Coverage = %v, want 0.5", st.Coverage)
	}
	if st.Min != 1000 || st.Max != 3000 {
		t.Errorf("Min/Max = %v/%v", st.Min, st.Max)
	}
	if st.Mean != 2000 {
		t.Errorf("Mean = %v, want 2000", st.Mean)
	}
	if st.Median != 2000 {
		t.Errorf("Median = %v, want 2000", st.Median)
	}

	empty := NewDepthMap(2, 2).Stats()
	if empty != (DepthStats{}) {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestDepthMap_Mat(t *testing.T) {
	dm := &DepthMap{Width: 2, Height: 2, Data: []uint16{1, 500, 65535, 0}}

	m, err := dm.Mat()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.Rows() != 2 || m.Cols() != 2 {
		t.Fatalf("shape = %dx%d", m.Rows(), m.Cols())
	}
	got, err := m.DataPtrUint16()
	if err != nil {
		t.Fatal(err)
	}
	for i := range dm.Data {
		if got[i] != dm.Data[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], dm.Data[i])
		}
	}
}
