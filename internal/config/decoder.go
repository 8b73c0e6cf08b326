package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/rslidar/internal/lidar/parse"
)

// DecoderConfig is the JSON configuration of one sensor decoder and its
// ingest sockets. Every field is optional; the Get* methods supply
// defaults for fields left out of the file.
type DecoderConfig struct {
	Model *string `json:"model,omitempty"` // "RS16" or "RS128"

	// Decoder limits: ranges in metres, angles in degrees.
	MinRange   *float64 `json:"min_range,omitempty"`
	MaxRange   *float64 `json:"max_range,omitempty"`
	StartAngle *float64 `json:"start_angle,omitempty"`
	EndAngle   *float64 `json:"end_angle,omitempty"`
	Resolution *string  `json:"resolution,omitempty"` // "fine" or "coarse"

	CalibrationDir *string `json:"calibration_dir,omitempty"`

	// Ingest
	MsopAddress  *string  `json:"msop_address,omitempty"`
	DifopAddress *string  `json:"difop_address,omitempty"`
	RcvBuf       *int     `json:"rcv_buf,omitempty"`
	LogInterval  *string  `json:"log_interval,omitempty"` // duration string like "30s"
	ReplaySpeed  *float64 `json:"replay_speed,omitempty"`

	MetricsAddress *string `json:"metrics_address,omitempty"`
}

// Defaults applied by the Get* accessors.
const (
	DefaultModel       = "RS16"
	DefaultRcvBuf      = 4 << 20
	DefaultLogInterval = time.Minute
)

// LoadDecoderConfig loads a DecoderConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadDecoderConfig(path string) (*DecoderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &DecoderConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that cannot be clamped later. Out-of-family
// ranges and angles are not errors; the decoder replaces them with family
// defaults.
func (c *DecoderConfig) Validate() error {
	if c.Model != nil {
		if _, err := parse.LookupFamily(*c.Model); err != nil {
			return err
		}
	}
	if c.Resolution != nil {
		switch strings.ToLower(*c.Resolution) {
		case "", "fine", "coarse":
		default:
			return fmt.Errorf("resolution must be \"fine\" or \"coarse\", got %q", *c.Resolution)
		}
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		d, err := time.ParseDuration(*c.LogInterval)
		if err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("log_interval must be positive, got %v", d)
		}
	}
	if c.ReplaySpeed != nil && *c.ReplaySpeed < 0 {
		return fmt.Errorf("replay_speed must be non-negative, got %f", *c.ReplaySpeed)
	}
	return nil
}

// GetModel returns the sensor model name or the default.
func (c *DecoderConfig) GetModel() string {
	if c.Model == nil || *c.Model == "" {
		return DefaultModel
	}
	return *c.Model
}

// Family resolves the configured model.
func (c *DecoderConfig) Family() (*parse.Family, error) {
	return parse.LookupFamily(c.GetModel())
}

// ParseConfig builds the decoder construction bundle for f, starting from
// the family defaults.
func (c *DecoderConfig) ParseConfig(f *parse.Family) parse.Config {
	pc := parse.DefaultConfig(f)
	if c.MinRange != nil {
		pc.MinRange = *c.MinRange
	}
	if c.MaxRange != nil {
		pc.MaxRange = *c.MaxRange
	}
	if c.StartAngle != nil {
		pc.StartAngle = *c.StartAngle
	}
	if c.EndAngle != nil {
		pc.EndAngle = *c.EndAngle
	}
	pc.FineResolution = c.Resolution != nil && strings.EqualFold(*c.Resolution, "fine")
	return pc
}

// GetCalibrationDir returns the calibration directory, empty when unset.
func (c *DecoderConfig) GetCalibrationDir() string {
	if c.CalibrationDir == nil {
		return ""
	}
	return *c.CalibrationDir
}

// GetMsopAddress returns the MSOP listen address or ":6699".
func (c *DecoderConfig) GetMsopAddress() string {
	if c.MsopAddress == nil || *c.MsopAddress == "" {
		return fmt.Sprintf(":%d", parse.DEFAULT_MSOP_PORT)
	}
	return *c.MsopAddress
}

// GetDifopAddress returns the DIFOP listen address or ":7788". An
// explicit empty string disables the DIFOP socket and is returned as is.
func (c *DecoderConfig) GetDifopAddress() string {
	if c.DifopAddress == nil {
		return fmt.Sprintf(":%d", parse.DEFAULT_DIFOP_PORT)
	}
	return *c.DifopAddress
}

// GetRcvBuf returns the socket receive buffer size or the default.
func (c *DecoderConfig) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return DefaultRcvBuf
	}
	return *c.RcvBuf
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *DecoderConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return DefaultLogInterval
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil || d <= 0 {
		return DefaultLogInterval
	}
	return d
}

// GetReplaySpeed returns the PCAP pacing factor; 0 replays unpaced.
func (c *DecoderConfig) GetReplaySpeed() float64 {
	if c.ReplaySpeed == nil {
		return 0
	}
	return *c.ReplaySpeed
}

// GetMetricsAddress returns the Prometheus listen address, empty to
// disable the endpoint.
func (c *DecoderConfig) GetMetricsAddress() string {
	if c.MetricsAddress == nil {
		return ""
	}
	return *c.MetricsAddress
}
