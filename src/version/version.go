package version

import "fmt"

// major is the major version number
const major = 0

// minor is the minor version number
const minor = 2

// patch is the patch version number
const patch = 0

// GetVersion returns the full version string for the current BIGSI software
func GetVersion() string {
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// GetBaseVersion returns the major minor version string, indexes and manifests written by the same base version are compatible
func GetBaseVersion() string {
	return fmt.Sprintf("%d.%d", major, minor)
}

// Compatible reports whether a version string shares the current base version
func Compatible(v string) bool {
	var vMajor, vMinor, vPatch int
	if _, err := fmt.Sscanf(v, "%d.%d.%d", &vMajor, &vMinor, &vPatch); err != nil {
		return false
	}
	return vMajor == major && vMinor == minor
}
