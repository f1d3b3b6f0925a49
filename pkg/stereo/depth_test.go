package stereo

import (
	"math"
	"testing"
)

func TestDepthFromDisparity(t *testing.T) {
	integer := Default()
	integer.Subpixel = false
	integer.FocalPixels = 394.468

	subpixel := Default()
	subpixel.Subpixel = true

	tests := []struct {
		name string
		cfg  Config
		d    uint16
	}{
		{"integer 48", integer, 48},
		{"integer 1", integer, 1},
		{"integer 95", integer, 95},
		{"subpixel 48", subpixel, 48},
		{"subpixel 3071", subpixel, 3071},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.cfg.DepthFromDisparity(tt.d)
			if !ok {
				t.Fatalf("DepthFromDisparity(%d) reported no depth", tt.d)
			}
			s := tt.cfg.EffectiveScale()
			l := float64(tt.cfg.DisparityLevels())
			want := math.Round(s * l * tt.cfg.BaselineMM * tt.cfg.FocalPixels / float64(tt.d))
			if want > math.MaxUint16 {
				want = math.MaxUint16
			}
			if float64(got) != want {
				t.Errorf("DepthFromDisparity(%d) = %d, want %v", tt.d, got, want)
			}
		})
	}
}

func TestDepthFromDisparity_EndToEndValue(t *testing.T) {
	cfg := Default()
	cfg.Subpixel = false
	cfg.BaselineMM = 75
	cfg.FocalPixels = 394.468
	cfg.Scale = 1080.0 / 400.0 / 10.0

	got, ok := cfg.DepthFromDisparity(48)
	if !ok || got != 616 {
		t.Errorf("DepthFromDisparity(48) = (%d, %t), want (616, true)", got, ok)
	}
}

func TestDepthFromDisparity_Zero(t *testing.T) {
	for _, sub := range []bool{false, true} {
		cfg := Default()
		cfg.Subpixel = sub
		got, ok := cfg.DepthFromDisparity(0)
		if ok {
			t.Errorf("subpixel=%t: zero disparity should not be valid", sub)
		}
		if got != NoDepth {
			t.Errorf("subpixel=%t: zero disparity = %d, want NoDepth", sub, got)
		}
	}
}

func TestDepthFromDisparity_Clamps(t *testing.T) {
	cfg := Default()
	cfg.Subpixel = true
	cfg.BaselineMM = 1e6

	got, ok := cfg.DepthFromDisparity(1)
	if !ok || got != MaxDepth {
		t.Errorf("huge depth = (%d, %t), want (%d, true)", got, ok, MaxDepth)
	}
}

func TestDepthTable_MatchesDirect(t *testing.T) {
	cfg := Default()
	table := cfg.DepthTable(cfg.MaxDisparity())

	if table[0] != NoDepth {
		t.Errorf("table[0] = %d, want NoDepth", table[0])
	}
	for d := 1; d < len(table); d += 37 {
		want, _ := cfg.DepthFromDisparity(uint16(d))
		if table[d] != want {
			t.Errorf("table[%d] = %d, want %d", d, table[d], want)
		}
	}
}

func TestVisualLevel(t *testing.T) {
	cfg := Default()
	cfg.Subpixel = false
	cfg.Extended = false

	tests := []struct {
		d    uint16
		want uint8
	}{
		{0, 0},
		{48, 127},
		{96, 255},
		{200, 255},
	}

	for _, tt := range tests {
		if got := cfg.VisualLevel(tt.d); got != tt.want {
			t.Errorf("VisualLevel(%d) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestDisparityFromDepth(t *testing.T) {
	integer := Default()
	integer.Subpixel = false
	integer.FocalPixels = 394.468

	if got := integer.DisparityFromDepth(616); got != 48 {
		t.Errorf("DisparityFromDepth(616) = %d, want 48", got)
	}
	if got := integer.DisparityFromDepth(0); got != 0 {
		t.Errorf("DisparityFromDepth(0) = %d, want 0", got)
	}
	if got := integer.DisparityFromDepth(1); got != uint16(integer.MaxDisparity()) {
		t.Errorf("DisparityFromDepth(1) = %d, want saturation at %d", got, integer.MaxDisparity())
	}

	// Round trip through the subpixel table stays within one level.
	sub := Default()
	for _, mm := range []float64{1000, 2500, 8000} {
		d := sub.DisparityFromDepth(mm)
		back, ok := sub.DepthFromDisparity(d)
		if !ok {
			t.Fatalf("DepthFromDisparity(%d) not ok", d)
		}
		step := mm * mm / (sub.EffectiveScale() * float64(sub.DisparityLevels()) * sub.BaselineMM * sub.FocalPixels)
		if math.Abs(float64(back)-mm) > step+1 {
			t.Errorf("round trip %v mm -> %d -> %d", mm, d, back)
		}
	}
}
