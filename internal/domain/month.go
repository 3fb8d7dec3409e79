package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidMonth is returned when a date token is not a valid YYYY_MM month.
var ErrInvalidMonth = errors.New("invalid month")

// monthRe matches the model date token, e.g. "2022_02". The month may be a
// single digit ("2022_2"), which is what strptime("%Y_%m") accepts as well.
var monthRe = regexp.MustCompile(`^(\d{4})_(\d{1,2})$`)

// Month is a calendar month of the model run.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY_MM" date token. Day-of-month is implicitly 1.
// Years start at 0001, and 0001_01 is rejected because it has no previous month.
func ParseMonth(s string) (Month, error) {
	matches := monthRe.FindStringSubmatch(s)
	if len(matches) != 3 {
		return Month{}, fmt.Errorf("parse date string %q: %w: expected YYYY_MM", s, ErrInvalidMonth)
	}

	year, err := strconv.Atoi(matches[1])
	if err != nil || year < 1 {
		return Month{}, fmt.Errorf("parse date string %q: %w: year out of range", s, ErrInvalidMonth)
	}
	month, err := strconv.Atoi(matches[2])
	if err != nil || month < 1 || month > 12 {
		return Month{}, fmt.Errorf("parse date string %q: %w: month out of range", s, ErrInvalidMonth)
	}

	// The run also needs the month before, which must exist.
	if year == 1 && month == 1 {
		return Month{}, fmt.Errorf("parse date string %q: %w: no previous month", s, ErrInvalidMonth)
	}

	return Month{Year: year, Month: time.Month(month)}, nil
}

// Previous returns the calendar month before m, rolling the year over in January.
func (m Month) Previous() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// String formats the month as a YYYY_MM token.
func (m Month) String() string {
	return fmt.Sprintf("%04d_%02d", m.Year, int(m.Month))
}
