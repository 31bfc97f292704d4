// Package parser provides deterministic extraction of slots from raw utterances.
//
// This file resolves relative and absolute date phrases and number words.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// "5th January", "5 January 2026", "January 5"
	dayMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(january|february|march|april|may|june|july|august|september|october|november|december)(?:\s+(\d{4}))?\b`)
	monthDayRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	// 05/01/2026 or 5-1-26 (day first, the locale this assistant serves)
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?\b`)
	nextWeekdayRe = regexp.MustCompile(`(?i)\b(next|last|this|coming)\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	bareWeekdayRe = regexp.MustCompile(`(?i)\b(?:on\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// numberWords resolves small spoken counts used in wage schedules
// ("two times a week", "thrice a week").
var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"once": 1, "twice": 2, "thrice": 3,
}

// DatePhrase is the resolved result of a date mention in an utterance.
type DatePhrase struct {
	Date    time.Time
	Matched string // the exact text that was consumed
}

// ResolveDate finds the first date phrase in text relative to now. Returns nil
// when no date phrase is present. Resolution never fails: malformed phrases
// are simply not matched.
func ResolveDate(text string, now time.Time) *DatePhrase {
	lower := strings.ToLower(text)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// Fixed relative phrases, longest first so "day after tomorrow" wins.
	relatives := []struct {
		phrase string
		days   int
	}{
		{"day after tomorrow", 2},
		{"day before yesterday", -2},
		{"tomorrow", 1},
		{"yesterday", -1},
		{"today", 0},
		{"tonight", 0},
	}
	for _, rel := range relatives {
		if idx := strings.Index(lower, rel.phrase); idx >= 0 {
			return &DatePhrase{
				Date:    midnight.AddDate(0, 0, rel.days),
				Matched: text[idx : idx+len(rel.phrase)],
			}
		}
	}

	if m := nextWeekdayRe.FindStringSubmatchIndex(lower); m != nil {
		qualifier := lower[m[2]:m[3]]
		day := weekdaysByName[lower[m[4]:m[5]]]
		return &DatePhrase{
			Date:    resolveWeekday(midnight, day, qualifier),
			Matched: text[m[0]:m[1]],
		}
	}

	if m := dayMonthRe.FindStringSubmatchIndex(lower); m != nil {
		day, _ := strconv.Atoi(lower[m[2]:m[3]])
		month := monthsByName[lower[m[4]:m[5]]]
		year := yearOrUpcoming(lower, m[6], m[7], month, day, midnight)
		if d, ok := buildDate(year, month, day, now.Location()); ok {
			return &DatePhrase{Date: d, Matched: text[m[0]:m[1]]}
		}
	}

	if m := monthDayRe.FindStringSubmatchIndex(lower); m != nil {
		month := monthsByName[lower[m[2]:m[3]]]
		day, _ := strconv.Atoi(lower[m[4]:m[5]])
		year := yearOrUpcoming(lower, m[6], m[7], month, day, midnight)
		if d, ok := buildDate(year, month, day, now.Location()); ok {
			return &DatePhrase{Date: d, Matched: text[m[0]:m[1]]}
		}
	}

	if m := numericDateRe.FindStringSubmatchIndex(lower); m != nil {
		day, _ := strconv.Atoi(lower[m[2]:m[3]])
		monthNum, _ := strconv.Atoi(lower[m[4]:m[5]])
		year := midnight.Year()
		if m[6] >= 0 {
			year, _ = strconv.Atoi(lower[m[6]:m[7]])
			if year < 100 {
				year += 2000
			}
		}
		if monthNum >= 1 && monthNum <= 12 {
			if d, ok := buildDate(year, time.Month(monthNum), day, now.Location()); ok {
				return &DatePhrase{Date: d, Matched: text[m[0]:m[1]]}
			}
		}
	}

	if m := bareWeekdayRe.FindStringSubmatchIndex(lower); m != nil {
		day := weekdaysByName[lower[m[2]:m[3]]]
		return &DatePhrase{
			Date:    resolveWeekday(midnight, day, "coming"),
			Matched: text[m[0]:m[1]],
		}
	}

	return nil
}

// resolveWeekday finds the nearest occurrence of day in the direction the
// qualifier implies. "next Friday" is always in the future; "last Friday"
// always in the past; a bare or "coming" weekday is the upcoming one.
func resolveWeekday(from time.Time, day time.Weekday, qualifier string) time.Time {
	diff := int(day) - int(from.Weekday())
	switch qualifier {
	case "last":
		if diff >= 0 {
			diff -= 7
		}
	default:
		if diff <= 0 {
			diff += 7
		}
	}
	return from.AddDate(0, 0, diff)
}

// yearOrUpcoming picks the explicit year when present, otherwise the current
// year, rolling forward when the date has already passed this year.
func yearOrUpcoming(lower string, start, end int, month time.Month, day int, now time.Time) int {
	if start >= 0 {
		year, _ := strconv.Atoi(lower[start:end])
		return year
	}
	year := now.Year()
	if candidate, ok := buildDate(year, month, day, now.Location()); ok && candidate.Before(now) {
		return year + 1
	}
	return year
}

// buildDate validates day-of-month bounds before constructing the date.
func buildDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Day() != day {
		// Overflowed into the next month, e.g. 31 February.
		return time.Time{}, false
	}
	return d, true
}

// ParseCount resolves a small count from digits or number words ("3", "three",
// "twice"). Returns nil when no count is found.
func ParseCount(text string) *int {
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?")
		if n, ok := numberWords[token]; ok {
			return &n
		}
		if n, err := strconv.Atoi(token); err == nil && n > 0 && n < 100 {
			return &n
		}
	}
	return nil
}
