package ov2680

import (
	"errors"
	"testing"
	"time"
)

func TestModeData_FullSize(t *testing.T) {
	s, _ := configuredSensor(t, 1616, 1216)

	d, err := s.ModeData()
	if err != nil {
		t.Fatalf("ModeData() error = %v", err)
	}

	if d.OutputWidth != 1616 || d.OutputHeight != 1216 {
		t.Errorf("output = %dx%d, want 1616x1216", d.OutputWidth, d.OutputHeight)
	}
	if d.CropHorizontalEnd != 0x64F || d.CropVerticalEnd != 0x4BF {
		t.Errorf("crop end = 0x%X/0x%X, want 0x64F/0x4BF", d.CropHorizontalEnd, d.CropVerticalEnd)
	}
	if d.VTPixClkFreqHz != 66000000 || d.LineLengthPck != 1698 || d.FrameLengthLns != 1294 {
		t.Errorf("timing = %d Hz, %d x %d", d.VTPixClkFreqHz, d.LineLengthPck, d.FrameLengthLns)
	}
	if d.ReadMode != ReadModeBinningOff || d.BinningFactorX != 0 {
		t.Errorf("full size mode reports binning")
	}
	// The catalogue rounds the line length, the program writes 0x06A8.
	if d.TimingHTS != 1704 || d.TimingVTS != 1294 {
		t.Errorf("programmed timing = %d x %d, want 1704 x 1294", d.TimingHTS, d.TimingVTS)
	}
	if got := d.FrameInterval(); got != 33291090*time.Nanosecond {
		t.Errorf("FrameInterval() = %s", got)
	}
	if got := d.LineTime(); got != 25727*time.Nanosecond {
		t.Errorf("LineTime() = %s", got)
	}
}

func TestModeData_Binned(t *testing.T) {
	s, _ := configuredSensor(t, 800, 600, WithCatalogue(mustCatalogue(t, "extended")))

	d, err := s.ModeData()
	if err != nil {
		t.Fatalf("ModeData() error = %v", err)
	}
	if d.OutputWidth != 800 || d.OutputHeight != 600 {
		t.Errorf("output = %dx%d, want 800x600", d.OutputWidth, d.OutputHeight)
	}
	if d.ReadMode != ReadModeBinningOn || d.BinningFactorX != 2 || d.BinningFactorY != 2 {
		t.Errorf("binning = 0x%X %dx%d", d.ReadMode, d.BinningFactorX, d.BinningFactorY)
	}
}

func TestModeData_RequiresMode(t *testing.T) {
	s, _ := newTestSensor(t)

	var stateErr *StateError
	if _, err := s.ModeData(); !errors.As(err, &stateErr) {
		t.Errorf("ModeData() error = %v, want StateError", err)
	}
	if (ModeData{}).FrameInterval() != 0 {
		t.Errorf("zero pixel clock should give a zero interval")
	}
}

func TestLens(t *testing.T) {
	l := DefaultLens

	if got := l.FocalLength.Packed(); got != 0x014E0064 {
		t.Errorf("focal length = 0x%08X, want 0x014E0064", got)
	}
	if got := l.FNumber.Packed(); got != 0x0018000A {
		t.Errorf("f-number = 0x%08X, want 0x0018000A", got)
	}
	if got := l.PackedFNumberRange(); got != 0x180A180A {
		t.Errorf("f-number range = 0x%08X, want 0x180A180A", got)
	}
	if l.FNumber.Float() != 2.4 || l.FNumber.String() != "24/10" {
		t.Errorf("f-number = %v (%s)", l.FNumber.Float(), l.FNumber)
	}
	if (Rational{Num: 1}).Float() != 0 {
		t.Errorf("zero denominator should give 0")
	}
}

func TestBayerOrder(t *testing.T) {
	tests := []struct {
		flip, mirror bool
		want         BayerOrder
		name         string
		code         PixelCode
	}{
		{false, false, BayerBGGR, "BGGR", MEDIA_BUS_FMT_SBGGR10_1X10},
		{true, false, BayerGRBG, "GRBG", MEDIA_BUS_FMT_SGRBG10_1X10},
		{false, true, BayerGBRG, "GBRG", MEDIA_BUS_FMT_SGBRG10_1X10},
		{true, true, BayerRGGB, "RGGB", MEDIA_BUS_FMT_SRGGB10_1X10},
	}
	for _, tt := range tests {
		got := bayerOrder(tt.flip, tt.mirror)
		if got != tt.want || got.String() != tt.name || got.Code() != tt.code {
			t.Errorf("bayerOrder(%v, %v) = %s/%s, want %s", tt.flip, tt.mirror, got, got.Code(), tt.name)
		}
	}
	for _, b := range []BayerOrder{-1, 7} {
		if b.String() != "unknown" || b.Code() != 0 {
			t.Errorf("out of range order %d = %s/0x%X, want unknown/0", int(b), b, uint32(b.Code()))
		}
	}
}
