package ov2680

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var embeddedCatalogue []byte

// ResolutionMode describes one hardware mode. Width and Height are the
// output raster after binning; PixelsPerLine (HTS) and LinesPerFrame (VTS)
// include blanking.
type ResolutionMode struct {
	Desc          string  `yaml:"desc"`
	ProgramName   string  `yaml:"program"`
	Program       Program `yaml:"-"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	FPS           int     `yaml:"fps"`
	PixClkMHz     int     `yaml:"pix_clk_mhz"`
	PixelsPerLine uint16  `yaml:"pixels_per_line"`
	LinesPerFrame uint16  `yaml:"lines_per_frame"`
	BinFactorX    uint8   `yaml:"bin_factor_x"`
	BinFactorY    uint8   `yaml:"bin_factor_y"`
	BinMode       uint8   `yaml:"bin_mode"`
	SkipFrames    uint32  `yaml:"skip_frames"`
	Used          bool    `yaml:"-"`
}

func (m ResolutionMode) validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("mode %s: invalid size %dx%d", m.Desc, m.Width, m.Height)
	}
	if int(m.PixelsPerLine) < m.Width {
		return fmt.Errorf("mode %s: pixels per line %d smaller than width %d", m.Desc, m.PixelsPerLine, m.Width)
	}
	if int(m.LinesPerFrame) < m.Height {
		return fmt.Errorf("mode %s: lines per frame %d smaller than height %d", m.Desc, m.LinesPerFrame, m.Height)
	}
	if m.BinFactorX > BinFactorMax || m.BinFactorY > BinFactorMax {
		return fmt.Errorf("mode %s: bin factor above %d", m.Desc, BinFactorMax)
	}
	if m.PixClkMHz <= 0 {
		return fmt.Errorf("mode %s: invalid pixel clock %d MHz", m.Desc, m.PixClkMHz)
	}
	return nil
}

// Catalogue is the fixed, ordered set of modes a device can be switched to.
// Programs are shared and read-only; each device works on its own copy so
// that only the Used flags differ.
type Catalogue struct {
	Name  string
	modes []ResolutionMode
}

type catalogueFile struct {
	Programs   map[string]Program          `yaml:"programs"`
	Catalogues map[string][]ResolutionMode `yaml:"catalogues"`
}

var builtin struct {
	global     Program
	catalogues map[string]*Catalogue
}

func init() {
	global, catalogues, err := parseCatalogues(embeddedCatalogue)
	if err != nil {
		panic(fmt.Sprintf("ov2680: embedded catalogue: %s", err))
	}
	builtin.global = global
	builtin.catalogues = catalogues
}

func parseCatalogues(data []byte) (Program, map[string]*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to decode catalogue: %w", err)
	}

	for name, prog := range file.Programs {
		if err := prog.Validate(); err != nil {
			return nil, nil, fmt.Errorf("program %s: %w", name, err)
		}
	}

	global, ok := file.Programs["global_setting"]
	if !ok {
		return nil, nil, fmt.Errorf("missing global_setting program")
	}

	catalogues := make(map[string]*Catalogue, len(file.Catalogues))
	for name, modes := range file.Catalogues {
		for i := range modes {
			prog, ok := file.Programs[modes[i].ProgramName]
			if !ok {
				return nil, nil, fmt.Errorf("mode %s: unknown program %q", modes[i].Desc, modes[i].ProgramName)
			}
			modes[i].Program = prog
			if err := modes[i].validate(); err != nil {
				return nil, nil, err
			}
		}
		catalogues[name] = &Catalogue{Name: name, modes: modes}
	}
	return global, catalogues, nil
}

// GlobalSetting returns the initialization program applied by Init.
func GlobalSetting() Program {
	return builtin.global
}

// LoadCatalogue returns a private copy of a built-in catalogue ("preview" or "extended").
func LoadCatalogue(name string) (*Catalogue, error) {
	c, ok := builtin.catalogues[name]
	if !ok {
		return nil, fmt.Errorf("unknown catalogue %q, have %v", name, CatalogueNames())
	}
	return c.Clone(), nil
}

// CatalogueNames lists the built-in catalogues.
func CatalogueNames() []string {
	names := make([]string, 0, len(builtin.catalogues))
	for name := range builtin.catalogues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCatalogue builds a catalogue from caller supplied modes, validating
// each mode and its program.
func NewCatalogue(name string, modes ...ResolutionMode) (*Catalogue, error) {
	for _, m := range modes {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if err := m.Program.Validate(); err != nil {
			return nil, fmt.Errorf("mode %s: %w", m.Desc, err)
		}
	}
	return &Catalogue{Name: name, modes: append([]ResolutionMode(nil), modes...)}, nil
}

// Clone copies the mode list with all Used flags cleared.
func (c *Catalogue) Clone() *Catalogue {
	modes := append([]ResolutionMode(nil), c.modes...)
	for i := range modes {
		modes[i].Used = false
	}
	return &Catalogue{Name: c.Name, modes: modes}
}

func (c *Catalogue) Len() int {
	return len(c.modes)
}

// Mode returns entry i by value.
func (c *Catalogue) Mode(i int) ResolutionMode {
	return c.modes[i]
}

// Modes returns a snapshot of all entries.
func (c *Catalogue) Modes() []ResolutionMode {
	return append([]ResolutionMode(nil), c.modes...)
}

func (c *Catalogue) markUsed(i int) {
	for j := range c.modes {
		c.modes[j].Used = j == i
	}
}

// Select picks the smallest mode covering width x height, where smallest
// means the least (W-width)+(H-height). Modes whose aspect ratio is within
// LargestAllowedRatioMismatch of the request are preferred; only when none of
// them covers the request is any covering mode considered. The first entry
// wins a tie. If no mode covers the request the mode with the largest area
// is returned.
func (c *Catalogue) Select(width, height int) (int, ResolutionMode, error) {
	if len(c.modes) == 0 {
		return -1, ResolutionMode{}, fmt.Errorf("catalogue %s has no modes", c.Name)
	}
	if width <= 0 || height <= 0 {
		return -1, ResolutionMode{}, fmt.Errorf("invalid size %dx%d", width, height)
	}

	if best := c.smallestCovering(width, height, true); best >= 0 {
		return best, c.modes[best], nil
	}
	if best := c.smallestCovering(width, height, false); best >= 0 {
		return best, c.modes[best], nil
	}

	largest := 0
	for i, m := range c.modes {
		if m.Width*m.Height > c.modes[largest].Width*c.modes[largest].Height {
			largest = i
		}
	}
	return largest, c.modes[largest], nil
}

func (c *Catalogue) smallestCovering(width, height int, sameAspect bool) int {
	best, bestExcess := -1, 0
	for i, m := range c.modes {
		if m.Width < width || m.Height < height {
			continue
		}
		if sameAspect && !aspectCompatible(m, width, height) {
			continue
		}
		excess := (m.Width - width) + (m.Height - height)
		if best < 0 || excess < bestExcess {
			best, bestExcess = i, excess
		}
	}
	return best
}

// aspectCompatible compares the width and height scale factors of m over the
// request in 1/8192 units.
func aspectCompatible(m ResolutionMode, width, height int) bool {
	wRatio := m.Width << 13 / width
	hRatio := m.Height << 13 / height
	if hRatio == 0 {
		return false
	}
	mismatch := wRatio<<13/hRatio - 8192
	if mismatch < 0 {
		mismatch = -mismatch
	}
	return mismatch <= LargestAllowedRatioMismatch
}
