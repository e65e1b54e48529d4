package dist

import "fmt"

// Tag is a single (python, abi, platform) compatibility triple, as
// produced by Python's packaging.tags for a target interpreter.
type Tag struct {
	Python   string
	ABI      string
	Platform string
}

// Tags is a prioritized list of compatible Tag values, most-preferred
// first, defining the set WheelFilename.IsCompatible checks against.
type Tags []Tag

// CPython builds the typical Tags list for a CPython interpreter of
// the given (major, minor) version on platform, most-specific first:
// abi3-stable tags for every older minor version, then the "none"/"any"
// fallbacks.
func CPython(major, minor int, platform string) Tags {
	var tags Tags
	impl := fmt.Sprintf("cp%d%d", major, minor)
	abi := impl
	tags = append(tags, Tag{impl, abi, platform})
	for m := minor; m >= 0; m-- {
		tags = append(tags, Tag{fmt.Sprintf("cp%d%d", major, m), "abi3", platform})
	}
	tags = append(tags, Tag{impl, "none", platform})
	tags = append(tags, Tag{fmt.Sprintf("py%d", major), "none", platform})
	for m := minor; m >= 0; m-- {
		tags = append(tags, Tag{fmt.Sprintf("py%d%d", major, m), "none", platform})
	}
	tags = append(tags, Tag{"py3", "none", "any"})
	return tags
}
