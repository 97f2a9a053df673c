// Package nameutil normalizes player and room names the way the protocol
// requires: collapse internal whitespace, strip outer whitespace, reject
// other control bytes, and cap the result length.
package nameutil

// MaxLength is the longest a normalized name may be.
const MaxLength = 256

func isASCIISpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

// Normalize collapses runs of internal whitespace to a single space, strips
// leading/trailing whitespace, and rejects the name if any other byte ≤
// 0x20 remains, if no non-space byte exists, or if the result exceeds
// MaxLength bytes.
func Normalize(name string) (string, bool) {
	src := []byte(name)
	dst := make([]byte, 0, len(src))

	i := 0
	for i < len(src) && isASCIISpace(src[i]) {
		i++
	}

	gotLetter := false
	for ; i < len(src); i++ {
		b := src[i]
		switch {
		case isASCIISpace(b):
			dst = append(dst, ' ')
			for i+1 < len(src) && isASCIISpace(src[i+1]) {
				i++
			}
		case b <= ' ':
			return "", false
		default:
			dst = append(dst, b)
			gotLetter = true
		}
	}

	if !gotLetter {
		return "", false
	}

	if len(dst) > 0 && dst[len(dst)-1] == ' ' {
		dst = dst[:len(dst)-1]
	}

	if len(dst) > MaxLength {
		return "", false
	}

	return string(dst), true
}
