package lifecycle

import (
	"strconv"
	"strings"

	"github.com/alanmeadows/chetter/internal/provider"
)

// NextVersion returns one more than the highest version found among refs whose
// name starts with scope, or 1 if none carry a version.
//
// The version is the text after the last 'v' in the name, parsed as an unsigned
// integer. Names where that parse fails (v4-base, junk, reviewer-v9-head) are
// skipped rather than filtered up front, so a single MatchingRefs result can be
// scanned for several scopes.
func NextVersion(refs []provider.Ref, scope string) int {
	highest := 0
	for _, r := range refs {
		if !strings.HasPrefix(r.Name, scope) {
			continue
		}
		v, ok := parseVersion(r.Name)
		if ok && v > highest {
			highest = v
		}
	}
	return highest + 1
}

func parseVersion(name string) (int, bool) {
	i := strings.LastIndexByte(name, 'v')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(name[i+1:], 10, 31)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
