// Package classify maps raw dev server errors to user-facing failure
// categories. The result is advisory metadata for display; callers must
// still handle every error, including the generic kind.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is a failure category.
type Kind string

const (
	KindMissingDependency Kind = "missing-dependency"
	KindSyntaxError       Kind = "syntax-error"
	KindImportError       Kind = "import-error"
	KindDevServerError    Kind = "dev-server-error"
)

// Failure is a classified error.
type Failure struct {
	Kind            Kind   `json:"kind"`
	UserMessage     string `json:"userMessage"`
	SuggestedAction string `json:"suggestedAction"`
	// Module is the missing package for KindMissingDependency.
	Module string `json:"module,omitempty"`
	// ImportPath is the unresolved specifier for KindImportError.
	ImportPath string `json:"importPath,omitempty"`
	// Location is "file:line[:col]" when the error carried one.
	Location string `json:"location,omitempty"`
	Raw      string `json:"raw"`
}

var (
	missingModule = []*regexp.Regexp{
		regexp.MustCompile(`(?i)cannot find module ['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?i)module not found:?(?:\s*error:)?\s*can'?t resolve ['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?i)cannot find package ['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?i)the following dependencies are imported but could not be resolved:\s*([^\s(]+)`),
		regexp.MustCompile(`(?i)module not found[^'"]*['"]([^'"]+)['"]`),
	}
	missingModuleHint = regexp.MustCompile(`(?i)(cannot find module|module not found|cannot find package|dependencies are imported but could not be resolved)`)

	syntaxHint = regexp.MustCompile(`(?i)(syntaxerror|syntax error|unexpected token|parse error|failed to parse|transform failed|unterminated (string|regular expression|template)|expected .+ but found)`)
	location   = regexp.MustCompile(`([\w./@-]+\.(?:[cm]?[jt]sx?|vue|svelte|css|html|json)):(\d+)(?::(\d+))?`)

	unresolvedImport = []*regexp.Regexp{
		regexp.MustCompile(`(?i)failed to resolve import ['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?i)could not resolve ['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?i)failed to fetch dynamically imported module:?\s*(\S+)`),
		regexp.MustCompile(`(?i)unable to resolve (?:module )?['"]?([^'"\s]+)['"]?`),
		regexp.MustCompile(`(?i)['"]([^'"]+)['"] does not provide an export named`),
	}
)

// Classify maps a raw error string to a Failure. Rules apply in priority
// order: missing module, syntax error, unresolved import, generic.
func Classify(raw string) Failure {
	msg := strings.TrimSpace(raw)

	if missingModuleHint.MatchString(msg) {
		module := firstMatch(missingModule, msg)
		return missingDependency(msg, module)
	}

	if syntaxHint.MatchString(msg) {
		f := Failure{
			Kind:            KindSyntaxError,
			UserMessage:     "The project contains a syntax error.",
			SuggestedAction: "Fix the syntax error in the reported file and save to reload.",
			Raw:             msg,
		}
		if loc := location.FindString(msg); loc != "" {
			f.Location = loc
			f.UserMessage = fmt.Sprintf("Syntax error in %s.", loc)
		}
		return f
	}

	if spec := firstMatch(unresolvedImport, msg); spec != "" {
		return Failure{
			Kind:            KindImportError,
			UserMessage:     fmt.Sprintf("Could not resolve import %q.", spec),
			SuggestedAction: importAction(spec),
			ImportPath:      spec,
			Raw:             msg,
		}
	}

	return Failure{
		Kind:            KindDevServerError,
		UserMessage:     "The development server failed to start.",
		SuggestedAction: "Check the output log for details and restart the preview.",
		Raw:             msg,
	}
}

func missingDependency(msg, module string) Failure {
	f := Failure{
		Kind:            KindMissingDependency,
		UserMessage:     "A required module is not installed.",
		SuggestedAction: "Add the missing package to package.json dependencies.",
		Raw:             msg,
	}
	if module == "" {
		return f
	}
	if isRelative(module) {
		f.Module = module
		f.UserMessage = fmt.Sprintf("Module %q was not found.", module)
		f.SuggestedAction = fmt.Sprintf("Check that %q exists and the import path is spelled correctly.", module)
		return f
	}
	pkg := PackageName(module)
	f.Module = pkg
	f.UserMessage = fmt.Sprintf("Module %q is not installed.", pkg)
	f.SuggestedAction = fmt.Sprintf("Add %q to package.json dependencies.", pkg)
	return f
}

func importAction(spec string) string {
	if isRelative(spec) {
		return fmt.Sprintf("Check that %q exists relative to the importing file.", spec)
	}
	return fmt.Sprintf("Add %q to package.json dependencies or fix the import path.", PackageName(spec))
}

// PackageName reduces a bare specifier to its package name:
// "lodash/fp" -> "lodash", "@scope/pkg/sub" -> "@scope/pkg".
func PackageName(spec string) string {
	spec = strings.TrimPrefix(spec, "node:")
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

func isRelative(spec string) bool {
	return strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/")
}

func firstMatch(patterns []*regexp.Regexp, msg string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(msg); len(m) > 1 {
			return strings.TrimRight(m[1], ".,;:")
		}
	}
	return ""
}
