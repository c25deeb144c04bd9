// Package config loads the study parameters that drive a trend run. The
// schema uses pointer fields so a partial JSON file is safe: omitted fields
// fall back to the Get* defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/thermal.report/internal/raster"
)

// StudyConfig is the root configuration for one trend study.
type StudyConfig struct {
	StudyStartYear *int `json:"study_start_year,omitempty"`
	StudyEndYear   *int `json:"study_end_year,omitempty"`

	// Season window: inclusive calendar-month range analysed in each year.
	SeasonStartMonth *int `json:"season_start_month,omitempty"`
	SeasonEndMonth   *int `json:"season_end_month,omitempty"`

	CloudCoverCeilingPercent *float64 `json:"cloud_cover_ceiling_percent,omitempty"`
	ValidPixelRatioThreshold *float64 `json:"valid_pixel_ratio_threshold,omitempty"`
	SignificanceThreshold    *float64 `json:"significance_threshold,omitempty"`
	SampleResolutionMeters   *float64 `json:"sample_resolution_meters,omitempty"`

	// MaxRegionSamples is the hard pixel budget for each region-wide
	// reduction. Exceeding it aborts the run.
	MaxRegionSamples *int `json:"max_region_samples,omitempty"`

	// Region is the polygon ring, in the archive CRS.
	Region []raster.Point `json:"region,omitempty"`

	// Collections maps sensor identifiers to archive collection ids.
	Collections map[string]string `json:"collections,omitempty"`
}

// LoadStudyConfig loads a StudyConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadStudyConfig(path string) (*StudyConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &StudyConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are coherent.
func (c *StudyConfig) Validate() error {
	if c.StudyStartYear != nil && c.StudyEndYear != nil && *c.StudyEndYear < *c.StudyStartYear {
		return fmt.Errorf("study_end_year %d precedes study_start_year %d", *c.StudyEndYear, *c.StudyStartYear)
	}
	if c.SeasonStartMonth != nil {
		if *c.SeasonStartMonth < 1 || *c.SeasonStartMonth > 12 {
			return fmt.Errorf("season_start_month must be 1..12, got %d", *c.SeasonStartMonth)
		}
	}
	if c.SeasonEndMonth != nil {
		if *c.SeasonEndMonth < 1 || *c.SeasonEndMonth > 12 {
			return fmt.Errorf("season_end_month must be 1..12, got %d", *c.SeasonEndMonth)
		}
	}
	if int(c.GetSeasonEndMonth()) < int(c.GetSeasonStartMonth()) {
		return fmt.Errorf("season window may not wrap the year boundary (%d..%d)",
			c.GetSeasonStartMonth(), c.GetSeasonEndMonth())
	}
	if c.ValidPixelRatioThreshold != nil {
		if *c.ValidPixelRatioThreshold < 0 || *c.ValidPixelRatioThreshold > 1 {
			return fmt.Errorf("valid_pixel_ratio_threshold must be between 0 and 1, got %f", *c.ValidPixelRatioThreshold)
		}
	}
	if c.CloudCoverCeilingPercent != nil {
		if *c.CloudCoverCeilingPercent < 0 || *c.CloudCoverCeilingPercent > 100 {
			return fmt.Errorf("cloud_cover_ceiling_percent must be between 0 and 100, got %f", *c.CloudCoverCeilingPercent)
		}
	}
	if c.SampleResolutionMeters != nil && *c.SampleResolutionMeters <= 0 {
		return fmt.Errorf("sample_resolution_meters must be positive, got %f", *c.SampleResolutionMeters)
	}
	if c.MaxRegionSamples != nil && *c.MaxRegionSamples <= 0 {
		return fmt.Errorf("max_region_samples must be positive, got %d", *c.MaxRegionSamples)
	}
	return nil
}

// GetStudyStartYear returns the study window start or the default.
func (c *StudyConfig) GetStudyStartYear() int {
	if c.StudyStartYear == nil {
		return 1994
	}
	return *c.StudyStartYear
}

// GetStudyEndYear returns the study window end or the default.
func (c *StudyConfig) GetStudyEndYear() int {
	if c.StudyEndYear == nil {
		return 2024
	}
	return *c.StudyEndYear
}

// GetSeasonStartMonth returns the season window start or the default (June).
func (c *StudyConfig) GetSeasonStartMonth() time.Month {
	if c.SeasonStartMonth == nil {
		return time.June
	}
	return time.Month(*c.SeasonStartMonth)
}

// GetSeasonEndMonth returns the season window end or the default (August).
func (c *StudyConfig) GetSeasonEndMonth() time.Month {
	if c.SeasonEndMonth == nil {
		return time.August
	}
	return time.Month(*c.SeasonEndMonth)
}

// GetCloudCoverCeilingPercent returns the scene cloud ceiling or the default.
func (c *StudyConfig) GetCloudCoverCeilingPercent() float64 {
	if c.CloudCoverCeilingPercent == nil {
		return 30.0
	}
	return *c.CloudCoverCeilingPercent
}

// GetValidPixelRatioThreshold returns the quality filter fraction or the default.
func (c *StudyConfig) GetValidPixelRatioThreshold() float64 {
	if c.ValidPixelRatioThreshold == nil {
		return 0.7
	}
	return *c.ValidPixelRatioThreshold
}

// GetSignificanceThreshold returns the |slope| significance cutoff or the default.
func (c *StudyConfig) GetSignificanceThreshold() float64 {
	if c.SignificanceThreshold == nil {
		return 0.02
	}
	return *c.SignificanceThreshold
}

// GetSampleResolutionMeters returns the reduction sampling resolution or the default.
func (c *StudyConfig) GetSampleResolutionMeters() float64 {
	if c.SampleResolutionMeters == nil {
		return 30.0
	}
	return *c.SampleResolutionMeters
}

// GetMaxRegionSamples returns the region reduction pixel budget or the default.
func (c *StudyConfig) GetMaxRegionSamples() int {
	if c.MaxRegionSamples == nil {
		return 100_000_000
	}
	return *c.MaxRegionSamples
}
