package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Calibration file names inside a sensor's calibration directory.
const (
	ANGLE_FILE       = "angle.csv"
	CHANNEL_NUM_FILE = "ChannelNum.csv"
	ZERO_ANGLE_FILE  = "ZeroAngleAbsdist.csv"
	LIMIT_FILE       = "limit.csv"
)

// LoadCalibrationDir reads the factory calibration files for family f from
// dir. Files that do not exist are skipped; the returned tables then leave
// the corresponding decoder state untouched. Malformed rows are reported
// with their file and line.
func LoadCalibrationDir(f *Family, dir string) (*CalibrationTables, error) {
	t := &CalibrationTables{}

	records, err := readCSV(dir, ANGLE_FILE)
	if err != nil {
		return nil, err
	}
	if records != nil {
		if err := parseAngleFile(f, records, t); err != nil {
			return nil, err
		}
	}

	records, err = readCSV(dir, CHANNEL_NUM_FILE)
	if err != nil {
		return nil, err
	}
	if records != nil {
		if err := parseChannelNumFile(f, records, t); err != nil {
			return nil, err
		}
	}

	records, err = readCSV(dir, ZERO_ANGLE_FILE)
	if err != nil {
		return nil, err
	}
	if records != nil {
		if err := applyZeroAngle(f, records, t); err != nil {
			return nil, err
		}
	}

	records, err = readCSV(dir, LIMIT_FILE)
	if err != nil {
		return nil, err
	}
	if records != nil {
		if err := parseLimitFile(records, t); err != nil {
			return nil, err
		}
	}

	if err := t.Validate(f); err != nil {
		return nil, err
	}
	return t, nil
}

// readCSV returns nil records when the file is missing.
func readCSV(dir, name string) ([][]string, error) {
	path := filepath.Join(dir, name)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		diagf("calibration file %s does not exist, skipping", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	records, err := readRecords(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	diagf("loaded %s (%d rows)", path, len(records))
	return records, nil
}

func readRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

func parseField(name string, line int, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value at line %d: %w", name, line, err)
	}
	return v, nil
}

// degreesToCentidegrees truncates toward zero.
func degreesToCentidegrees(deg float64) int32 {
	return int32(math.Trunc(deg * 100))
}

// parseAngleFile reads one row per laser: the vertical angle in degrees and,
// when present, the horizontal angle in degrees. Rows beyond Lasers are
// ignored.
func parseAngleFile(f *Family, records [][]string, t *CalibrationTables) error {
	if len(records) < f.Lasers {
		return fmt.Errorf("%s: %d rows, want %d: %w", ANGLE_FILE, len(records), f.Lasers, ErrTableShape)
	}
	t.VertAngle = make([]int32, f.Lasers)
	t.HorizAngle = make([]int32, f.Lasers)
	for i, record := range records[:f.Lasers] {
		if len(record) < 1 {
			return fmt.Errorf("%s: empty record at line %d", ANGLE_FILE, i+1)
		}
		vert, err := parseField(ANGLE_FILE, i+1, record[0])
		if err != nil {
			return err
		}
		t.VertAngle[i] = degreesToCentidegrees(vert)
		if len(record) > 1 {
			horiz, err := parseField(ANGLE_FILE, i+1, record[1])
			if err != nil {
				return err
			}
			t.HorizAngle[i] = degreesToCentidegrees(horiz)
		}
	}
	return nil
}

// parseChannelNumFile reads the distance correction table: one row per
// laser, one integer tick column per temperature bucket.
func parseChannelNumFile(f *Family, records [][]string, t *CalibrationTables) error {
	if len(records) < f.Lasers {
		return fmt.Errorf("%s: %d rows, want %d: %w", CHANNEL_NUM_FILE, len(records), f.Lasers, ErrTableShape)
	}
	buckets := f.Buckets()
	t.DistanceCorrection = make([][]int32, f.Lasers)
	for i, record := range records[:f.Lasers] {
		if len(record) < buckets {
			return fmt.Errorf("%s: invalid record at line %d: expected %d fields, got %d", CHANNEL_NUM_FILE, i+1, buckets, len(record))
		}
		row := make([]int32, buckets)
		for j := 0; j < buckets; j++ {
			v, err := strconv.ParseInt(strings.TrimSpace(record[j]), 10, 32)
			if err != nil {
				return fmt.Errorf("%s: invalid tick count at line %d column %d: %w", CHANNEL_NUM_FILE, i+1, j+1, err)
			}
			row[j] = int32(v)
		}
		t.DistanceCorrection[i] = row
	}
	return nil
}

// applyZeroAngle subtracts the zero-angle offset (degrees) from every
// horizontal angle.
func applyZeroAngle(f *Family, records [][]string, t *CalibrationTables) error {
	if len(records) == 0 || len(records[0]) == 0 {
		return fmt.Errorf("%s: no offset value", ZERO_ANGLE_FILE)
	}
	zero, err := parseField(ZERO_ANGLE_FILE, 1, records[0][0])
	if err != nil {
		return err
	}
	if t.HorizAngle == nil {
		t.HorizAngle = make([]int32, f.Lasers)
	}
	offset := degreesToCentidegrees(zero)
	for i := range t.HorizAngle {
		t.HorizAngle[i] -= offset
	}
	return nil
}

// parseLimitFile reads the minimum and maximum range in centimetres, one
// per line.
func parseLimitFile(records [][]string, t *CalibrationTables) error {
	if len(records) < 2 || len(records[0]) == 0 || len(records[1]) == 0 {
		return fmt.Errorf("%s: expected min and max range on two lines", LIMIT_FILE)
	}
	minCM, err := parseField(LIMIT_FILE, 1, records[0][0])
	if err != nil {
		return err
	}
	maxCM, err := parseField(LIMIT_FILE, 2, records[1][0])
	if err != nil {
		return err
	}
	t.MinRange = minCM / 100
	t.MaxRange = maxCM / 100
	return nil
}
