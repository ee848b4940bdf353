package patch

import "strings"

// Strip removes the first n leading components of a header path. Both "/"
// and "\" separate components and empty components are skipped without
// counting towards n. When n covers every component the final component is
// returned. The result always uses "/" and keeps a trailing separator.
func Strip(p string, n int) string {
	p = toSlash(p)
	if n <= 0 {
		return p
	}
	parts := splitComponents(p)
	if len(parts) == 0 {
		return ""
	}
	if n >= len(parts) {
		return parts[len(parts)-1]
	}
	out := strings.Join(parts[n:], "/")
	if strings.HasSuffix(p, "/") {
		out += "/"
	}
	return out
}

// Normalize converts a header path to a clean root-relative form: "\" becomes
// "/", any root prefix is dropped, "." segments vanish and ".." segments are
// resolved textually. A ".." that climbs above the start is kept as a leading
// segment so callers can detect traversal. The filesystem is never consulted
// and Normalize(Normalize(p)) == Normalize(p).
func Normalize(p string) string {
	out := resolveDots(StripRoot(toSlash(p)))
	// "a/../c:/x" resolves to a drive prefix that must go too.
	for IsAbs(out) {
		out = resolveDots(StripRoot(out))
	}
	return out
}

func resolveDots(p string) string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
				continue
			}
			out = append(out, seg)
		default:
			out = append(out, seg)
		}
	}
	return strings.Join(out, "/")
}

// StripRoot removes, in priority order, a UNC server and share prefix, a
// drive letter, or a single leading separator.
func StripRoot(p string) string {
	if len(p) >= 2 && isSep(p[0]) && isSep(p[1]) {
		rest := p[2:]
		// server
		i := indexSep(rest)
		if i < 0 {
			return ""
		}
		rest = rest[i+1:]
		// share
		i = indexSep(rest)
		if i < 0 {
			return ""
		}
		return rest[i+1:]
	}
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		p = p[2:]
	}
	if p != "" && isSep(p[0]) {
		return p[1:]
	}
	return p
}

// IsAbs reports whether p carries a root prefix that StripRoot would remove.
func IsAbs(p string) bool {
	return p != "" && StripRoot(p) != p
}

// escapesRoot reports whether a normalized path climbs above its root.
func escapesRoot(normalized string) bool {
	return normalized == ".." || strings.HasPrefix(normalized, "../")
}

func toSlash(p string) string {
	if strings.Contains(p, `\`) {
		return strings.ReplaceAll(p, `\`, "/")
	}
	return p
}

func splitComponents(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}

func isSep(c byte) bool {
	return c == '/' || c == '\\'
}

func indexSep(s string) int {
	return strings.IndexAny(s, `/\`)
}

func isDriveLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
