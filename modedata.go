package ov2680

import (
	"fmt"
	"time"
)

// ModeData is the timing information an ISP needs to convert exposure
// between lines and time for the active mode.
type ModeData struct {
	VTPixClkFreqHz int
	LineLengthPck  uint16
	FrameLengthLns uint16

	CoarseIntegrationTimeMin       int
	CoarseIntegrationTimeMaxMargin int
	FineIntegrationTimeMin         int
	FineIntegrationTimeMaxMargin   int
	FineIntegrationTimeDef         int

	CropHorizontalStart uint16
	CropVerticalStart   uint16
	CropHorizontalEnd   uint16
	CropVerticalEnd     uint16
	OutputWidth         uint16
	OutputHeight        uint16

	BinningFactorX uint8
	BinningFactorY uint8
	ReadMode       uint16

	// Line and frame length as programmed on the sensor, which can differ
	// from the catalogue timing above.
	TimingHTS uint16
	TimingVTS uint16
}

// FrameInterval is HTS x VTS pixel clocks.
func (d ModeData) FrameInterval() time.Duration {
	if d.VTPixClkFreqHz == 0 {
		return 0
	}
	return time.Duration(int64(d.LineLengthPck) * int64(d.FrameLengthLns) * int64(time.Second) / int64(d.VTPixClkFreqHz))
}

// LineTime is the duration of one line, the unit of SetExposure.
func (d ModeData) LineTime() time.Duration {
	if d.VTPixClkFreqHz == 0 {
		return 0
	}
	return time.Duration(int64(d.LineLengthPck) * int64(time.Second) / int64(d.VTPixClkFreqHz))
}

// ModeData reads back the crop window and output size of the active mode
// and combines them with the catalogue timing.
func (s *OV2680) ModeData() (ModeData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.modeIdx < 0 {
		return ModeData{}, &StateError{Op: "read mode data without a mode", State: s.st.state}
	}

	m := s.st.mode
	d := ModeData{
		VTPixClkFreqHz:                 s.st.pixClkHz,
		LineLengthPck:                  m.PixelsPerLine,
		FrameLengthLns:                 m.LinesPerFrame,
		CoarseIntegrationTimeMin:       CoarseIntegrationTimeMin,
		CoarseIntegrationTimeMaxMargin: CoarseIntegrationTimeMaxMargin,
		FineIntegrationTimeMin:         FineIntegrationTimeMin,
		FineIntegrationTimeMaxMargin:   FineIntegrationTimeMaxMargin,
		FineIntegrationTimeDef:         FineIntegrationTimeMin,
		BinningFactorX:                 m.BinFactorX,
		BinningFactorY:                 m.BinFactorY,
		ReadMode:                       ReadModeBinningOff,
	}
	if m.BinMode != 0 {
		d.ReadMode = ReadModeBinningOn
	}

	for _, f := range []struct {
		reg register
		dst *uint16
	}{
		{HORIZONTAL_START, &d.CropHorizontalStart},
		{VERTICAL_START, &d.CropVerticalStart},
		{HORIZONTAL_END, &d.CropHorizontalEnd},
		{VERTICAL_END, &d.CropVerticalEnd},
		{HORIZONTAL_OUTPUT_SIZE, &d.OutputWidth},
		{VERTICAL_OUTPUT_SIZE, &d.OutputHeight},
	} {
		v, err := s.readRegister(f.reg)
		if err != nil {
			return ModeData{}, fmt.Errorf("failed to read mode data: %w", err)
		}
		*f.dst = uint16(v) & 0x0FFF
	}

	for _, f := range []struct {
		reg register
		dst *uint16
	}{
		{TIMING_HTS, &d.TimingHTS},
		{TIMING_VTS, &d.TimingVTS},
	} {
		v, err := s.readRegister(f.reg)
		if err != nil {
			return ModeData{}, fmt.Errorf("failed to read mode data: %w", err)
		}
		*f.dst = uint16(v)
	}
	return d, nil
}

// Rational is a numerator/denominator pair.
type Rational struct {
	Num uint16
	Den uint16
}

// Packed encodes r as bits 31-16 numerator, bits 15-0 denominator.
func (r Rational) Packed() uint32 {
	return uint32(r.Num)<<16 | uint32(r.Den)
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Lens describes the fixed module optics.
type Lens struct {
	FocalLength Rational
	FNumber     Rational
	FNumberMin  Rational
	FNumberMax  Rational
}

// DefaultLens is the 3.34mm f/2.4 module the sensor ships with.
var DefaultLens = Lens{
	FocalLength: Rational{Num: 334, Den: 100},
	FNumber:     Rational{Num: 24, Den: 10},
	FNumberMin:  Rational{Num: 24, Den: 10},
	FNumberMax:  Rational{Num: 24, Den: 10},
}

// PackedFNumberRange encodes the range as max num/den in bits 31-16 and
// min num/den in bits 15-0, 8 bits each.
func (l Lens) PackedFNumberRange() uint32 {
	return uint32(l.FNumberMax.Num&0xFF)<<24 | uint32(l.FNumberMax.Den&0xFF)<<16 |
		uint32(l.FNumberMin.Num&0xFF)<<8 | uint32(l.FNumberMin.Den&0xFF)
}

// BayerOrder is the color filter order of the first output line.
type BayerOrder int

const (
	BayerBGGR BayerOrder = iota
	BayerGRBG
	BayerGBRG
	BayerRGGB
)

var bayerNames = [...]string{"BGGR", "GRBG", "GBRG", "RGGB"}

var bayerCodes = [...]PixelCode{
	MEDIA_BUS_FMT_SBGGR10_1X10,
	MEDIA_BUS_FMT_SGRBG10_1X10,
	MEDIA_BUS_FMT_SGBRG10_1X10,
	MEDIA_BUS_FMT_SRGGB10_1X10,
}

func (b BayerOrder) String() string {
	if b < 0 || int(b) >= len(bayerNames) {
		return "unknown"
	}
	return bayerNames[b]
}

// Code is the raw 10 bit media bus code with this order.
// Out of range orders have no code and return 0.
func (b BayerOrder) Code() PixelCode {
	if b < 0 || int(b) >= len(bayerCodes) {
		return 0
	}
	return bayerCodes[b]
}

func bayerOrder(flip, mirror bool) BayerOrder {
	idx := 0
	if flip {
		idx |= FlipBit
	}
	if mirror {
		idx |= MirrorBit
	}
	return BayerOrder(idx)
}

// BayerOrder reports the pixel order produced with the current flip and mirror settings.
func (s *OV2680) BayerOrder() BayerOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bayerOrder(s.st.flip, s.st.mirror)
}
