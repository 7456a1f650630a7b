package wrapper

import (
	"errors"
	"fmt"
	"strings"
)

// Escape encodes s as one double-quoted interpreter string literal.
//
// Quotes, backslashes and line breaks become backslash escapes; any other
// control byte becomes a three-digit octal escape. Bytes are processed one at a
// time so invalid UTF-8 survives unchanged.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03o`, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ErrMalformedLiteral reports a string literal that Escape could not have produced.
var ErrMalformedLiteral = errors.New("malformed string literal")

// Unescape decodes a literal produced by Escape, including its surrounding quotes.
func Unescape(literal string) (string, error) {
	value, rest, err := readLiteral(literal)
	if err != nil {
		return "", err
	}
	if rest != "" {
		return "", fmt.Errorf("%w: trailing text %q", ErrMalformedLiteral, rest)
	}
	return value, nil
}

// readLiteral decodes the quoted literal at the start of s and returns what follows it.
func readLiteral(s string) (string, string, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", "", fmt.Errorf("%w: missing opening quote", ErrMalformedLiteral)
	}

	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), s[i+1:], nil
		case '\\':
			i++
			if i >= len(s) {
				return "", "", fmt.Errorf("%w: dangling backslash", ErrMalformedLiteral)
			}
			switch s[i] {
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				if i+3 > len(s) || !isOctal(s[i]) || !isOctal(s[i+1]) || !isOctal(s[i+2]) {
					return "", "", fmt.Errorf("%w: unknown escape at offset %d", ErrMalformedLiteral, i-1)
				}
				v := int(s[i]-'0')<<6 | int(s[i+1]-'0')<<3 | int(s[i+2]-'0')
				if v > 0xff {
					return "", "", fmt.Errorf("%w: octal escape out of range at offset %d", ErrMalformedLiteral, i-1)
				}
				b.WriteByte(byte(v))
				i += 2
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", "", fmt.Errorf("%w: missing closing quote", ErrMalformedLiteral)
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
