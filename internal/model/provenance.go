package model

import "strings"

// InterpolatedTag marks records whose gaps were filled from financial
// identities or sector averages rather than a provider.
const InterpolatedTag = "interpolated"

// AppendProvenance adds tag to a comma-joined provenance list, preserving
// the order in which sources were first seen and never duplicating a tag.
func AppendProvenance(prov, tag string) string {
	if tag == "" {
		return prov
	}
	if prov == "" {
		return tag
	}
	for _, existing := range strings.Split(prov, ",") {
		if existing == tag {
			return prov
		}
	}
	return prov + "," + tag
}

// HasProvenance reports whether tag already appears in the provenance list.
func HasProvenance(prov, tag string) bool {
	if prov == "" {
		return false
	}
	for _, existing := range strings.Split(prov, ",") {
		if existing == tag {
			return true
		}
	}
	return false
}

// ProvenanceTags splits a provenance list into its tags.
func ProvenanceTags(prov string) []string {
	if prov == "" {
		return nil
	}
	return strings.Split(prov, ",")
}
