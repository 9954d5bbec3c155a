package ov2680

type register struct {
	Address  uint16
	Length   int
	ReadOnly bool
}

// System control
var SW_STREAM = register{0x0100, 1, false}
var SW_RESET = register{0x0103, 1, false}
var CHIP_ID = register{0x300A, 2, true}
var SUB_ID = register{0x302A, 1, true}
var GROUP_ACCESS = register{0x3208, 1, false}

// Exposure and analog gain. EXPOSURE_H holds bits 19:16, AGC_H holds bits 9:8.
var EXPOSURE_H = register{0x3500, 1, false}
var EXPOSURE_M = register{0x3501, 1, false}
var EXPOSURE_L = register{0x3502, 1, false}
var AGC_H = register{0x350A, 1, false}
var AGC_L = register{0x350B, 1, false}

// Timing window, all 12 bit values split over a high and a low register.
var HORIZONTAL_START = register{0x3800, 2, false}
var VERTICAL_START = register{0x3802, 2, false}
var HORIZONTAL_END = register{0x3804, 2, false}
var VERTICAL_END = register{0x3806, 2, false}
var HORIZONTAL_OUTPUT_SIZE = register{0x3808, 2, false}
var VERTICAL_OUTPUT_SIZE = register{0x380A, 2, false}
var TIMING_HTS = register{0x380C, 2, false}
var TIMING_VTS = register{0x380E, 2, false}

var FLIP_REG = register{0x3820, 1, false}
var MIRROR_REG = register{0x3821, 1, false}

// Manual white balance gains, each a 12 bit value over two registers.
var MWB_RED_GAIN = register{0x5004, 2, false}
var MWB_GREEN_GAIN = register{0x5006, 2, false}
var MWB_BLUE_GAIN = register{0x5008, 2, false}

const (
	ChipID = 0x2680

	StartStreaming = 0x01
	StopStreaming  = 0x00
	SoftReset      = 0x01

	FlipBit               = 1
	MirrorBit             = 2
	FlipMirrorBitEnable   = 4
	MaxExposureValue      = 0xFFF1
	MaxGainValue          = 0xFF
	MaxWhiteBalanceGain   = 0x0FFF
	IntegrationTimeMargin = 8

	CoarseIntegrationTimeMin       = 1
	CoarseIntegrationTimeMaxMargin = 6
	FineIntegrationTimeMin         = 0
	FineIntegrationTimeMaxMargin   = 0

	ReadModeBinningOn  = 0x0400
	ReadModeBinningOff = 0x00
	BinFactorMax       = 4

	// Aspect ratio tolerance of mode selection in 1/8192 units.
	LargestAllowedRatioMismatch = 800

	// Bus batching and retry limits.
	MaxWriteBufSize = 30
	I2CRetryCount   = 5

	// DefaultI2CAddress is the 7 bit SCCB address with SID pulled low.
	DefaultI2CAddress = 0x36
)

// USB identifiers of the CDC I2C bridge used by SerialBridge autodetection.
const VENDOR_ID = "2E8A"

var PRODUCT_IDs = []string{"000A", "F00A"}

// Media bus codes understood by Configure. Only raw 10 bit BGGR is produced by the sensor.
type PixelCode uint32

const (
	MEDIA_BUS_FMT_SBGGR10_1X10 PixelCode = 0x3007
	MEDIA_BUS_FMT_SGBRG10_1X10 PixelCode = 0x300e
	MEDIA_BUS_FMT_SGRBG10_1X10 PixelCode = 0x300a
	MEDIA_BUS_FMT_SRGGB10_1X10 PixelCode = 0x300f
)

var pixelCodeNames = map[PixelCode]string{
	MEDIA_BUS_FMT_SBGGR10_1X10: "SBGGR10_1X10",
	MEDIA_BUS_FMT_SGBRG10_1X10: "SGBRG10_1X10",
	MEDIA_BUS_FMT_SGRBG10_1X10: "SGRBG10_1X10",
	MEDIA_BUS_FMT_SRGGB10_1X10: "SRGGB10_1X10",
}

func (c PixelCode) String() string {
	if name, ok := pixelCodeNames[c]; ok {
		return name
	}
	return "unknown"
}
