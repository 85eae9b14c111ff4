// Package validation holds format-level checks for identifiers used on
// GST compliance documents. Every function is pure and total: it returns
// whether the value is acceptable plus a human-readable reason when it is
// not, and never panics.
package validation

import (
	"regexp"
	"strings"
)

var (
	gstinPattern   = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	vehiclePattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{1,2}[A-Z]{1,2}[0-9]{4}$`)
	pinPattern     = regexp.MustCompile(`^[0-9]{6}$`)
	hsnPattern     = regexp.MustCompile(`^[0-9]{4,8}$`)
)

// ValidateGSTIN checks a 15-character GST registration number.
func ValidateGSTIN(value string) (bool, string) {
	if value == "" {
		return false, "GSTIN is required"
	}
	if len(value) != 15 {
		return false, "GSTIN must be exactly 15 characters"
	}
	if !gstinPattern.MatchString(value) {
		return false, "GSTIN format is invalid"
	}
	return true, ""
}

// ValidateVehicleNumber checks a vehicle registration number. Whitespace is
// stripped and letters are uppercased before matching, so "mh 12 ab 1234"
// and "MH12AB1234" are both accepted.
func ValidateVehicleNumber(value string) (bool, string) {
	normalized := NormalizeVehicleNumber(value)
	if normalized == "" {
		return false, "vehicle number is required"
	}
	if !vehiclePattern.MatchString(normalized) {
		return false, "vehicle number format is invalid"
	}
	return true, ""
}

// NormalizeVehicleNumber uppercases and strips all whitespace.
func NormalizeVehicleNumber(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

// ValidatePINCode checks a 6-digit postal code.
func ValidatePINCode(value string) (bool, string) {
	if value == "" {
		return false, "PIN code is required"
	}
	if !pinPattern.MatchString(value) {
		return false, "PIN code must be exactly 6 digits"
	}
	return true, ""
}

// ValidateHSNCode checks a 4 to 8 digit product classification code.
func ValidateHSNCode(value string) (bool, string) {
	if value == "" {
		return false, "HSN code is required"
	}
	if !hsnPattern.MatchString(value) {
		return false, "HSN code must be 4 to 8 digits"
	}
	return true, ""
}
