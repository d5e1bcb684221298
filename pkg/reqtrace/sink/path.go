package sink

import (
	"os"
	"regexp"
	"strconv"
	"time"
)

// placeholderPattern matches ${varname} - varname can contain
// alphanumeric and underscore.
var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// ExpandPath replaces ${name} placeholders in an output path with
// values from vars. Unknown placeholders are kept as-is.
//
// Example:
//
//	ExpandPath("trace-${session}-${date}.csv", PathVars("ses-1a2b3c4d", "fuse", time.Now()))
//	// "trace-ses-1a2b3c4d-2026-08-23.csv"
func ExpandPath(path string, vars map[string]string) string {
	if path == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(path, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// PathVars returns the standard placeholder set for output paths:
// session, profile, date (2006-01-02), time (150405) and pid.
func PathVars(session, profile string, now time.Time) map[string]string {
	return map[string]string{
		"session": session,
		"profile": profile,
		"date":    now.Format("2006-01-02"),
		"time":    now.Format("150405"),
		"pid":     strconv.Itoa(os.Getpid()),
	}
}
