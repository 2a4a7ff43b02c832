// Package timefmt formats timestamps for the admin console in Western
// Indonesian Time (WIB).
package timefmt

import "time"

// wibOffset is UTC+7. Jakarta has no DST, so the fixed zone is exact.
const wibOffset = 7 * 60 * 60

// Layouts matching the id-ID locale rendering the console expects.
const (
	layoutDateTime = "02/01/2006, 15.04.05"
	layoutDate     = "02/01/2006"
	layoutTime     = "15.04.05"
)

// wib is resolved once; hosts without tzdata fall back to the fixed offset.
var wib = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", wibOffset)
	}

	return loc
}()

// WIB formats t as "dd/mm/yyyy, HH.MM.SS" in Asia/Jakarta.
func WIB(t time.Time) string {
	return t.In(wib).Format(layoutDateTime)
}

// WIBDate formats only the date part.
func WIBDate(t time.Time) string {
	return t.In(wib).Format(layoutDate)
}

// WIBTime formats only the time part.
func WIBTime(t time.Time) string {
	return t.In(wib).Format(layoutTime)
}

// WIBPtr formats an optional timestamp; nil yields nil so JSON renders null.
func WIBPtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}

	s := WIB(*t)

	return &s
}

// IsToday reports whether t falls on the current WIB calendar day.
func IsToday(t, now time.Time) bool {
	return WIBDate(t) == WIBDate(now)
}
