// Package cv holds OpenCV helpers for consuming OV2680 frames: dropping the
// frames that follow a mode switch and demosaicing raw Bayer output.
package cv

import (
	"fmt"

	"gocv.io/x/gocv"
)

// DiscardSettling reads and drops n frames from capture. Call it after a
// mode switch with the skip count the driver reported.
func DiscardSettling(capture *gocv.VideoCapture, n uint32) error {
	mat := gocv.NewMat()
	defer mat.Close()

	for i := uint32(0); i < n; i++ {
		if !capture.Read(&mat) {
			return fmt.Errorf("failed to read settling frame %d of %d", i+1, n)
		}
	}
	return nil
}

// OpenCV names Bayer patterns after the second row, so the sensor's BGGR is
// OpenCV's RG and so on.
var bayerConversions = map[string]gocv.ColorConversionCode{
	"BGGR": gocv.ColorBayerRGToBGR,
	"RGGB": gocv.ColorBayerBGToBGR,
	"GBRG": gocv.ColorBayerGRToBGR,
	"GRBG": gocv.ColorBayerGBToBGR,
}

// Read takes the next valid frame from capture and demosaics it into dst
// using the sensor's current Bayer order ("BGGR", "GRBG", "GBRG" or "RGGB").
func Read(capture *gocv.VideoCapture, order string, dst *gocv.Mat) error {
	code, ok := bayerConversions[order]
	if !ok {
		return fmt.Errorf("unknown bayer order %q", order)
	}

	raw := gocv.NewMat()
	defer raw.Close()

	if !capture.Read(&raw) {
		return fmt.Errorf("failed to read frame")
	}
	if raw.Empty() {
		return fmt.Errorf("empty frame")
	}

	gocv.CvtColor(raw, dst, code)
	return nil
}
