package util

import (
	"regexp"
	"strings"
)

var (
	iccidNoise = regexp.MustCompile(`[\s\-]+`)
	iccidShape = regexp.MustCompile(`^89\d{16,20}F?$`)
)

// NormalizeICCID strips whitespace and dashes and upper-cases the optional
// trailing filler digit.
func NormalizeICCID(raw string) string {
	s := iccidNoise.ReplaceAllString(strings.TrimSpace(raw), "")
	return strings.ToUpper(s)
}

// ValidICCID accepts telecom ICCIDs: "89" prefix, 18-22 digits, optional F.
func ValidICCID(s string) bool {
	return iccidShape.MatchString(s)
}
