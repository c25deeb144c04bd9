// Package harmonize converts raw per-sensor scenes into physical units on a
// canonical band set. Optical digital numbers become surface reflectance,
// the thermal channel becomes land surface temperature in degrees Celsius,
// and pixels flagged as cloud or cloud shadow are masked to no-data.
//
// Different sensor generations expose the thermal channel under different
// band names, so the source band is selected by testing which recognized
// name is actually present on the input, not by sensor identifier alone.
package harmonize

import (
	"fmt"

	"github.com/banshee-data/thermal.report/internal/raster"
)

const kelvinOffset = 273.15

// QABand is the quality band consulted for per-pixel masking.
const QABand = "QA_PIXEL"

// thermalCandidates lists recognized thermal band names in preference
// order. Newer sensor generations come first.
var thermalCandidates = []string{"ST_B10", "ST_B6"}

// MissingBandError reports an input scene with no recognized thermal band.
// The pipeline drops the scene and keeps the run going.
type MissingBandError struct {
	Sensor string
	Tried  []string
}

func (e *MissingBandError) Error() string {
	return fmt.Sprintf("sensor %s: no recognized thermal band (tried %v)", e.Sensor, e.Tried)
}

// Calibration holds the per-sensor linear conversion from digital numbers
// to physical units.
type Calibration struct {
	OpticalScale  float64 `json:"optical_scale"`
	OpticalOffset float64 `json:"optical_offset"`
	ThermalScale  float64 `json:"thermal_scale"`
	ThermalOffset float64 `json:"thermal_offset"` // yields Kelvin before the Celsius shift
}

// QABits describes the quality band bit layout for cloud masking.
type QABits struct {
	CloudBit  uint `json:"cloud_bit"`
	ShadowBit uint `json:"shadow_bit"`
}

// Masked reports whether a raw QA sample has either quality bit set.
func (q QABits) Masked(qa float64) bool {
	if raster.IsNoData(qa) {
		// No QA information is treated as contaminated.
		return true
	}
	bits := uint64(qa)
	return bits&(1<<q.CloudBit) != 0 || bits&(1<<q.ShadowBit) != 0
}

// opticalBands maps a sensor's raw optical band names onto the canonical
// set. Collection-2 surface reflectance shifted band numbering between the
// TM/ETM+ and OLI generations.
var opticalBands = map[string]map[string]string{
	"LANDSAT_5": {"SR_B1": raster.BandBlue, "SR_B2": raster.BandGreen, "SR_B3": raster.BandRed, "SR_B4": raster.BandNIR},
	"LANDSAT_7": {"SR_B1": raster.BandBlue, "SR_B2": raster.BandGreen, "SR_B3": raster.BandRed, "SR_B4": raster.BandNIR},
	"LANDSAT_8": {"SR_B2": raster.BandBlue, "SR_B3": raster.BandGreen, "SR_B4": raster.BandRed, "SR_B5": raster.BandNIR},
	"LANDSAT_9": {"SR_B2": raster.BandBlue, "SR_B3": raster.BandGreen, "SR_B4": raster.BandRed, "SR_B5": raster.BandNIR},
}

// DefaultCalibrations returns the Collection-2 Level-2 scale factors shared
// by the supported Landsat sensors.
func DefaultCalibrations() map[string]Calibration {
	c := Calibration{
		OpticalScale:  2.75e-5,
		OpticalOffset: -0.2,
		ThermalScale:  3.41802e-3,
		ThermalOffset: 149.0,
	}
	return map[string]Calibration{
		"LANDSAT_5": c,
		"LANDSAT_7": c,
		"LANDSAT_8": c,
		"LANDSAT_9": c,
	}
}

// DefaultQABits returns the Collection-2 QA_PIXEL layout: bit 3 cloud,
// bit 4 cloud shadow.
func DefaultQABits() QABits {
	return QABits{CloudBit: 3, ShadowBit: 4}
}

// Harmonizer converts raw scenes to the canonical harmonized form.
type Harmonizer struct {
	calibrations map[string]Calibration
	qa           QABits
}

// New creates a Harmonizer with explicit calibrations and QA layout.
func New(calibrations map[string]Calibration, qa QABits) *Harmonizer {
	return &Harmonizer{calibrations: calibrations, qa: qa}
}

// NewDefault creates a Harmonizer for the supported Landsat sensors.
func NewDefault() *Harmonizer {
	return New(DefaultCalibrations(), DefaultQABits())
}

// resolveThermal returns the name of the thermal band present on the image.
func (h *Harmonizer) resolveThermal(img *raster.Image) (string, error) {
	for _, name := range thermalCandidates {
		if img.HasBand(name) {
			return name, nil
		}
	}
	return "", &MissingBandError{Sensor: img.Sensor, Tried: append([]string(nil), thermalCandidates...)}
}

// Harmonize converts one raw scene. The result carries exactly the
// canonical band set, reflectance in approximately [0,1], LST in degrees
// Celsius, and no-data wherever the QA band flags cloud or shadow. The
// input image is not modified.
func (h *Harmonizer) Harmonize(img *raster.Image) (*raster.Image, error) {
	cal, ok := h.calibrations[img.Sensor]
	if !ok {
		return nil, fmt.Errorf("no calibration registered for sensor %q", img.Sensor)
	}
	thermalName, err := h.resolveThermal(img)
	if err != nil {
		return nil, err
	}
	thermal := img.Band(thermalName)
	qa := img.Band(QABand)

	width, height := thermal.Width, thermal.Height
	out := &raster.Image{
		Bands:      make(map[string]*raster.Grid, len(raster.CanonicalBands)),
		Ref:        img.Ref,
		AcquiredAt: img.AcquiredAt,
		Sensor:     img.Sensor,
		CloudCover: img.CloudCover,
	}

	// mask[i] is true where the pixel must come out as no-data.
	mask := make([]bool, width*height)
	if qa != nil {
		for i, v := range qa.Data {
			mask[i] = h.qa.Masked(v)
		}
	}

	for rawName, canonical := range opticalBands[img.Sensor] {
		src := img.Band(rawName)
		if src == nil {
			// Partial scenes keep the canonical set: absent optical
			// sources yield an all-missing band.
			out.Bands[canonical] = raster.NewGrid(width, height)
			continue
		}
		out.Bands[canonical] = convert(src, cal.OpticalScale, cal.OpticalOffset, 0, mask)
	}
	if len(opticalBands[img.Sensor]) == 0 {
		for _, canonical := range raster.CanonicalBands {
			if canonical != raster.BandLST {
				out.Bands[canonical] = raster.NewGrid(width, height)
			}
		}
	}
	out.Bands[raster.BandLST] = convert(thermal, cal.ThermalScale, cal.ThermalOffset, -kelvinOffset, mask)
	return out, nil
}

// convert applies v*scale + offset + shift to every unmasked valid sample.
func convert(src *raster.Grid, scale, offset, shift float64, mask []bool) *raster.Grid {
	out := raster.NewGrid(src.Width, src.Height)
	for i, v := range src.Data {
		if mask[i] || raster.IsNoData(v) {
			continue
		}
		out.Data[i] = v*scale + offset + shift
	}
	return out
}
