package ov2680

import "fmt"

// Exposure holds a coarse integration time request in lines and the value
// written after clamping to the active mode.
type Exposure struct {
	Requested int
	Applied   int
}

func (e Exposure) Clamped() bool {
	return e.Requested != e.Applied
}

// Gain holds an analog gain code request and the value written.
type Gain struct {
	Requested int
	Applied   int
}

func (g Gain) Clamped() bool {
	return g.Requested != g.Applied
}

// WhiteBalance holds the manual white balance gains written, 0x400 is 1x.
type WhiteBalance struct {
	Red   int
	Green int
	Blue  int
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ExposureLimits returns the legal coarse integration range for a mode.
func ExposureLimits(m ResolutionMode) (min, max int) {
	max = int(m.LinesPerFrame) - IntegrationTimeMargin
	if max > MaxExposureValue {
		max = MaxExposureValue
	}
	if max < CoarseIntegrationTimeMin {
		max = CoarseIntegrationTimeMin
	}
	return CoarseIntegrationTimeMin, max
}

// SetExposure writes a coarse integration time in lines. Values outside
// the active mode's range are clamped, the result reports both values.
func (s *OV2680) SetExposure(lines int) (Exposure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lines <= 0 {
		return Exposure{Requested: lines}, &RangeError{Control: "exposure", Value: lines}
	}
	if s.st.modeIdx < 0 {
		return Exposure{Requested: lines}, &StateError{Op: "set exposure without a mode", State: s.st.state}
	}

	exp, err := s.writeExposure(lines)
	if err != nil {
		return exp, err
	}
	s.st.exposure = exp
	s.st.exposureSet = true
	return exp, nil
}

// writeExposure encodes lines in 1/16 line units over EXPOSURE_H (bits
// 19:16), EXPOSURE_M and EXPOSURE_L, inside a group hold.
func (s *OV2680) writeExposure(lines int) (Exposure, error) {
	min, max := ExposureLimits(s.st.mode)
	exp := Exposure{Requested: lines, Applied: clamp(lines, min, max)}
	if exp.Clamped() {
		s.metrics.clamped("exposure")
		s.logger.Debug("exposure clamped", "requested", exp.Requested, "applied", exp.Applied, "max", max)
	}

	raw := uint32(exp.Applied) << 4
	prog := groupHold(
		W8(EXPOSURE_H.Address, uint8(raw>>16)&0x0F),
		W8(EXPOSURE_M.Address, uint8(raw>>8)),
		W8(EXPOSURE_L.Address, uint8(raw)),
	)
	if err := s.interp.Apply(prog); err != nil {
		return exp, fmt.Errorf("failed to set exposure: %w", err)
	}
	return exp, nil
}

// SetGain writes the analog gain code, clamped to MaxGainValue.
func (s *OV2680) SetGain(code int) (Gain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code <= 0 {
		return Gain{Requested: code}, &RangeError{Control: "gain", Value: code}
	}
	if s.st.state == Sleeping {
		return Gain{Requested: code}, &StateError{Op: "set gain", State: s.st.state}
	}

	gain, err := s.writeGain(code)
	if err != nil {
		return gain, err
	}
	s.st.gain = gain
	s.st.gainSet = true
	return gain, nil
}

// writeGain splits the gain into AGC_H (bits 9:8) and AGC_L (bits 7:0).
func (s *OV2680) writeGain(code int) (Gain, error) {
	gain := Gain{Requested: code, Applied: clamp(code, 0, MaxGainValue)}
	if gain.Clamped() {
		s.metrics.clamped("gain")
		s.logger.Debug("gain clamped", "requested", gain.Requested, "applied", gain.Applied)
	}

	prog := groupHold(
		W8(AGC_H.Address, uint8(gain.Applied>>8)&0x03),
		W8(AGC_L.Address, uint8(gain.Applied)),
	)
	if err := s.interp.Apply(prog); err != nil {
		return gain, fmt.Errorf("failed to set gain: %w", err)
	}
	return gain, nil
}

// SetWhiteBalance writes the manual red, green and blue gains, each
// clamped to MaxWhiteBalanceGain.
func (s *OV2680) SetWhiteBalance(red, green, blue int) (WhiteBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range []struct {
		name  string
		value int
	}{{"red gain", red}, {"green gain", green}, {"blue gain", blue}} {
		if ch.value <= 0 {
			return WhiteBalance{}, &RangeError{Control: ch.name, Value: ch.value}
		}
	}
	if s.st.state == Sleeping {
		return WhiteBalance{}, &StateError{Op: "set white balance", State: s.st.state}
	}

	wb := WhiteBalance{
		Red:   clamp(red, 0, MaxWhiteBalanceGain),
		Green: clamp(green, 0, MaxWhiteBalanceGain),
		Blue:  clamp(blue, 0, MaxWhiteBalanceGain),
	}
	if wb != (WhiteBalance{Red: red, Green: green, Blue: blue}) {
		s.metrics.clamped("white_balance")
	}

	prog := Program{
		W16(MWB_RED_GAIN.Address, uint16(wb.Red)),
		W16(MWB_GREEN_GAIN.Address, uint16(wb.Green)),
		W16(MWB_BLUE_GAIN.Address, uint16(wb.Blue)),
		Term(),
	}
	if err := s.interp.Apply(prog); err != nil {
		return wb, fmt.Errorf("failed to set white balance: %w", err)
	}
	s.st.wb = wb
	return wb, nil
}

// SetFlip enables or disables vertical flip.
func (s *OV2680) SetFlip(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setFlipMirror("flip", FLIP_REG, enable); err != nil {
		return err
	}
	s.st.flip = enable
	return nil
}

// SetMirror enables or disables horizontal mirroring.
func (s *OV2680) SetMirror(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setFlipMirror("mirror", MIRROR_REG, enable); err != nil {
		return err
	}
	s.st.mirror = enable
	return nil
}

func (s *OV2680) setFlipMirror(name string, reg register, enable bool) error {
	if s.st.state == Sleeping {
		return &StateError{Op: "set " + name, State: s.st.state}
	}

	val, err := s.readRegister(reg)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	if enable {
		val |= FlipMirrorBitEnable
	} else {
		val &^= FlipMirrorBitEnable
	}
	if err := s.writeRegister(reg, val); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	s.logger.Debug(name+" updated", "enabled", enable, "reg", hex16(reg.Address), "value", val)
	return nil
}

// groupHold wraps register writes so the sensor latches them on the same frame.
func groupHold(ops ...RegisterOp) Program {
	prog := make(Program, 0, len(ops)+4)
	prog = append(prog, W8(GROUP_ACCESS.Address, 0x00))
	prog = append(prog, ops...)
	prog = append(prog, W8(GROUP_ACCESS.Address, 0x10), W8(GROUP_ACCESS.Address, 0xa0), Term())
	return prog
}
