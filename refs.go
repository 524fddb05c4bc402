package plmxml

import "strings"

// stripRef removes the leading '#' of a URI fragment reference
func stripRef(ref string) string {
	return strings.TrimPrefix(ref, "#")
}

// splitRefs splits a whitespace-separated reference list and strips each item
func splitRefs(refs string) []string {
	fields := strings.Fields(refs)
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = stripRef(f)
	}
	return out
}
