// Package pathutil implements the slash-separated path rules used by the
// isolate: normalisation, name validation, and the dirname/basename split.
//
// Paths are UTF-8 and at most Max bytes. A name may contain ASCII
// letters, digits, '.', '_' and '-', and may not be "." or ".." as a
// whole segment.
package pathutil

// Max is the longest accepted path in bytes.
const Max = 512

const nameChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789" +
	"-_."

// Normalize collapses duplicate slashes and resolves "." and ".."
// segments. Leading ".." segments of a relative path are preserved.
// A ".." that would escape an absolute root is rejected and Normalize
// returns ("", false). A trailing slash survives normalisation. A path
// longer than Max bytes is rejected the same way.
func Normalize(path string) (string, bool) {
	if path == "" {
		return "", true
	}
	if len(path) > Max {
		return "", false
	}
	abs := path[0] == '/'
	trailing := path[len(path)-1] == '/'

	var stack []string
	seg := func(s string) bool {
		switch s {
		case "", ".":
		case "..":
			if n := len(stack); n > 0 && stack[n-1] != ".." {
				stack = stack[:n-1]
			} else if abs {
				return false
			} else {
				stack = append(stack, "..")
			}
		default:
			stack = append(stack, s)
		}
		return true
	}

	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if !seg(path[start:i]) {
				return "", false
			}
			start = i + 1
		}
	}

	out := make([]byte, 0, len(path))
	if abs {
		out = append(out, '/')
	}
	for i, s := range stack {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, s...)
	}
	if trailing && len(stack) > 0 {
		out = append(out, '/')
	}
	return string(out), true
}

// ValidateName reports whether name is acceptable as a single path
// segment.
func ValidateName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for i := 0; i < len(name); i++ {
		ok := false
		for j := 0; j < len(nameChars); j++ {
			if name[i] == nameChars[j] {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// DropTrailingSlash returns path without its trailing slashes.
func DropTrailingSlash(path string) string {
	n := len(path)
	for n > 0 && path[n-1] == '/' {
		n--
	}
	return path[:n]
}

// Dirname returns the leading portion of path up to and including the
// slash before the last segment.
func Dirname(path string) string {
	n := len(DropTrailingSlash(path))
	for n > 0 && path[n-1] != '/' {
		n--
	}
	return path[:n]
}

// Basename returns the last segment of path, keeping any trailing
// slashes that follow it.
func Basename(path string) string {
	return path[len(Dirname(path)):]
}
