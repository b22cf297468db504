package weather

import (
	"fmt"
	"strings"
)

// Member counts published by the ensemble API for the models we know about.
var modelMembers = map[string]int{
	"gfs_seamless":  31,
	"gfs025":        31,
	"icon_seamless": 40,
	"icon_global":   40,
	"icon_eu":       40,
	"ecmwf_ifs04":   51,
	"ecmwf_ifs025":  51,
	"gem_global":    21,
}

// DefaultMembers returns the member count for a known ensemble model, or 0.
func DefaultMembers(model string) int {
	return modelMembers[strings.ToLower(model)]
}

// MemberKey returns the payload key that holds a member's sequence.
// The ensemble API names member 0 with the bare variable name and only
// suffixes members 1..N, so member 0 must stay a special case here.
func MemberKey(variable string, member int) string {
	if member == 0 {
		return variable
	}
	return fmt.Sprintf("%s_member%02d", variable, member)
}
