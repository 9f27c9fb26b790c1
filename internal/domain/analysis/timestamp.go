package analysis

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTimestamp = errors.New("invalid image timestamp")

var imageNamePattern = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})T(\d{2})(\d{2})(\d{2})(\d{3})$`)

// FormatImageName renders t as yyyyMMddTHHmmssfff in t's location.
func FormatImageName(t time.Time) string {
	return fmt.Sprintf("%s%03d", t.Format("20060102T150405"), t.Nanosecond()/int(time.Millisecond))
}

// ParseImageTimestamp parses a staged image name (with or without extension)
// in loc. Names that do not match yyyyMMddTHHmmssfff exactly, or that describe an
// impossible date, are rejected.
func ParseImageTimestamp(name string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	m := imageNamePattern.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, name)
	}

	parts := make([]int, 7)
	for i := range parts {
		parts[i], _ = strconv.Atoi(m[i+1])
	}
	ts := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5],
		parts[6]*int(time.Millisecond), loc)

	// time.Date normalises overflow (month 13, Feb 30); round-tripping catches it.
	if FormatImageName(ts) != base {
		return time.Time{}, fmt.Errorf("%w: %q is not a valid date", ErrInvalidTimestamp, name)
	}
	return ts, nil
}
