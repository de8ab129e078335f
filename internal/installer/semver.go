package installer

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Resolve picks the version of doc satisfying spec. Supported forms are
// dist-tags, exact versions, ^ and ~ ranges, x-ranges and >=. Anything
// else resolves to the latest tag.
func Resolve(doc *Packument, spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	latest := doc.DistTags["latest"]

	switch {
	case spec == "" || spec == "*" || spec == "x":
		return orLatest(latest, doc)
	case doc.DistTags[spec] != "":
		return doc.DistTags[spec], nil
	}

	if _, ok := doc.Versions[strings.TrimPrefix(spec, "=")]; ok {
		return strings.TrimPrefix(spec, "="), nil
	}

	match, ok := matcher(spec)
	if !ok {
		return orLatest(latest, doc)
	}

	// Prefer latest when it satisfies the range, as npm does.
	if latest != "" && match(canonical(latest)) {
		return latest, nil
	}
	for _, v := range sortedVersions(doc) {
		c := canonical(v)
		if semver.Prerelease(c) != "" {
			continue
		}
		if match(c) {
			return v, nil
		}
	}
	return "", ErrNoMatchingVersion
}

func orLatest(latest string, doc *Packument) (string, error) {
	if latest != "" {
		return latest, nil
	}
	if versions := sortedVersions(doc); len(versions) > 0 {
		return versions[0], nil
	}
	return "", ErrNoMatchingVersion
}

// matcher builds a predicate over canonical "vX.Y.Z" versions.
func matcher(spec string) (func(string) bool, bool) {
	switch {
	case strings.HasPrefix(spec, ">="):
		base := canonical(strings.TrimSpace(spec[2:]))
		if !semver.IsValid(base) {
			return nil, false
		}
		return func(v string) bool { return semver.Compare(v, base) >= 0 }, true

	case strings.HasPrefix(spec, "^"):
		base := canonical(spec[1:])
		if !semver.IsValid(base) {
			return nil, false
		}
		// ^0.x pins the minor version.
		prefix := semver.Major(base)
		if prefix == "v0" {
			prefix = semver.MajorMinor(base)
		}
		return func(v string) bool {
			return semver.Compare(v, base) >= 0 && sameLine(v, prefix)
		}, true

	case strings.HasPrefix(spec, "~"):
		base := canonical(spec[1:])
		if !semver.IsValid(base) {
			return nil, false
		}
		prefix := semver.MajorMinor(base)
		return func(v string) bool {
			return semver.Compare(v, base) >= 0 && sameLine(v, prefix)
		}, true

	case strings.HasSuffix(spec, ".x") || strings.HasSuffix(spec, ".*"):
		prefix := "v" + strings.TrimRight(spec[:len(spec)-2], ".")
		if !semver.IsValid(prefix) {
			return nil, false
		}
		return func(v string) bool { return sameLine(v, prefix) }, true
	}
	return nil, false
}

func sameLine(v, prefix string) bool {
	return v == prefix || strings.HasPrefix(v, prefix+".") || strings.HasPrefix(v, prefix+"-")
}

func canonical(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "=")
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func compareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}
