package crontab

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed five-field crontab entry: minute, hour,
// day-of-month, month, day-of-week.
type Schedule struct {
	minute [60]bool
	hour   [24]bool
	dom    [31]bool // index 0 == day 1
	month  [12]bool // index 0 == January
	dow    [8]bool  // index 0 and 7 both mean Sunday
}

// Parse parses a five-field schedule string ("minute hour dom month
// dow"). Each field is a comma-separated list of "*", "N", "N-M", or
// any of those suffixed with "/step".
//
// day-of-month and day-of-week combine by OR: a day matches if it
// matches either field. If both are "*" every day matches. If exactly
// one is "*" that field is widened to match nothing, so only the
// explicit field constrains the day; this mirrors the asymmetry a
// plain OR of two wildcards would otherwise hide.
func Parse(spec string) (*Schedule, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return nil, fmt.Errorf("crontab: expected 5 fields, got %d", len(fields))
	}

	s := &Schedule{}

	if err := parseField(fields[0], s.minute[:], 60, true); err != nil {
		return nil, fmt.Errorf("crontab: minute: %w", err)
	}
	if err := parseField(fields[1], s.hour[:], 24, true); err != nil {
		return nil, fmt.Errorf("crontab: hour: %w", err)
	}

	wildcardDom := fields[2] == "*"
	if !wildcardDom {
		if err := parseField(fields[2], s.dom[:], 31, false); err != nil {
			return nil, fmt.Errorf("crontab: day-of-month: %w", err)
		}
	}

	if err := parseField(fields[3], s.month[:], 12, false); err != nil {
		return nil, fmt.Errorf("crontab: month: %w", err)
	}

	wildcardDow := fields[4] == "*"
	if !wildcardDow {
		if err := parseField(fields[4], s.dow[:], 8, true); err != nil {
			return nil, fmt.Errorf("crontab: day-of-week: %w", err)
		}
		if s.dow[7] {
			s.dow[0] = true
		}
		if s.dow[0] {
			s.dow[7] = true
		}
	}

	switch {
	case wildcardDom && wildcardDow:
		for i := range s.dom {
			s.dom[i] = true
		}
	case wildcardDom && !wildcardDow:
		for i := range s.dom {
			s.dom[i] = false
		}
	case !wildcardDom && wildcardDow:
		for i := range s.dow {
			s.dow[i] = false
		}
	}

	return s, nil
}

// parseField fills bits from field's comma-separated token list.
// zeroBased fields (minute, hour, day-of-week) store value N at
// bits[N]; one-based fields (day-of-month, month) store value N at
// bits[N-1] and reject N==0.
func parseField(field string, bits []bool, n int, zeroBased bool) error {
	for _, tok := range strings.Split(field, ",") {
		if err := parseToken(tok, bits, n, zeroBased); err != nil {
			return fmt.Errorf("%q: %w", tok, err)
		}
	}
	return nil
}

func parseToken(tok string, bits []bool, n int, zeroBased bool) error {
	rangeStep := strings.SplitN(tok, "/", 2)
	step := 1
	if len(rangeStep) == 2 {
		v, err := parseUint(rangeStep[1])
		if err != nil || v <= 0 {
			return fmt.Errorf("bad step")
		}
		step = v
	}

	rangeParts := strings.SplitN(rangeStep[0], "-", 2)
	if rangeParts[0] == "*" {
		if len(rangeParts) == 2 {
			return fmt.Errorf("bad specification: range after wildcard")
		}
		for i := range bits {
			bits[i] = true
		}
		return nil
	}

	start, err := parseUint(rangeParts[0])
	if err != nil {
		return err
	}
	offset := 0
	if !zeroBased {
		offset = 1
		if start == 0 {
			return fmt.Errorf("value 0 invalid for one-based field")
		}
	}

	end := -1
	if len(rangeParts) == 2 {
		end, err = parseUint(rangeParts[1])
		if err != nil {
			return err
		}
	}

	if start-offset >= n || start-offset < 0 {
		return fmt.Errorf("value %d out of range", start)
	}
	if end != -1 && (end-offset >= n || end-offset < 0) {
		return fmt.Errorf("value %d out of range", end)
	}

	if end == -1 {
		bits[start-offset] = true
	}
	for i := start - offset; i <= end-offset; i += step {
		bits[i] = true
	}
	return nil
}

func parseUint(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	return strconv.Atoi(s)
}

// Next returns the next wall-clock minute (second and below zeroed)
// at or after now that matches the schedule. now need not itself be
// minute-aligned.
func (s *Schedule) Next(now time.Time) time.Time {
	loc := now.Location()
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, loc)
	if next.Before(now) {
		next = next.Add(time.Minute)
	}

	dayIncrement := false
	hourIncrement := 0
	var found, minFound int

nextDay:
	next = s.nextMatchingDay(next, dayIncrement)

nextHour:
	found = -1
	for h := next.Hour() + hourIncrement; h < 24; h++ {
		if s.hour[h] {
			found = h
			break
		}
	}
	if found == -1 {
		next = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc)
		dayIncrement = true
		hourIncrement = 0
		goto nextDay
	}
	if found > next.Hour() {
		next = time.Date(next.Year(), next.Month(), next.Day(), found, 0, 0, 0, loc)
	}

	minFound = -1
	for m := next.Minute(); m < 60; m++ {
		if s.minute[m] {
			minFound = m
			break
		}
	}
	if minFound == -1 {
		hourIncrement = 1
		goto nextHour
	}

	return time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), minFound, 0, 0, loc)
}

// nextMatchingDay advances t (already zeroed to minute granularity, or
// coarser) to the next day whose month/day-of-month/day-of-week bits
// match, optionally forcing at least one day of advancement first.
func (s *Schedule) nextMatchingDay(t time.Time, increment bool) time.Time {
	loc := t.Location()
	if increment {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}
	advanced := increment
	for !(s.month[int(t.Month())-1] && (s.dom[t.Day()-1] || s.dow[int(t.Weekday())])) {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		advanced = true
	}
	if advanced {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	return t
}
