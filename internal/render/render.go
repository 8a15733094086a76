/*
MIT License

Copyright (c) 2023 Joseph Cumines
Copyright (c) 2017 Olivier Poitrey

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package render formats a leak's byte-prefix for two audiences: a
// multi-line hex+ASCII dump for LogUnreachableMemory's human-facing
// output, and a single-line escaped string safe to drop into a structured
// log field. Both are adapted from the teacher's byte-escaping routines
// (originally itself adapted from zerolog's string encoder): the escape
// table and \u00xx fallback are reused verbatim for the field form, and
// the dump form follows the byte-grouping the original detector's own
// LogUnreachable used.
package render

import "unicode/utf8"

const hexDigits = "0123456789abcdef"

// HexDump renders data as a classic hex+ASCII dump, bytesPerLine bytes to
// a line: "<hex address>: <hex bytes, space separated> <ascii, '.' for
// non-printable>". begin is the address of data[0], used to label each
// line the way the original detector's LogUnreachable did.
func HexDump(begin uintptr, data []byte, bytesPerLine int) string {
	if bytesPerLine <= 0 {
		bytesPerLine = 16
	}

	var out []byte
	for i := 0; i < len(data); i += bytesPerLine {
		end := i + bytesPerLine
		if end > len(data) {
			end = len(data)
		}
		line := data[i:end]

		out = appendHexAddr(out, uint64(begin)+uint64(i))
		out = append(out, ':', ' ')

		for j := 0; j < bytesPerLine; j++ {
			if j < len(line) {
				b := line[j]
				out = append(out, hexDigits[b>>4], hexDigits[b&0xF], ' ')
			} else {
				out = append(out, ' ', ' ', ' ')
			}
		}

		for _, b := range line {
			if b < ' ' || b >= 0x7f {
				b = '.'
			}
			out = append(out, b)
		}
		if end < len(data) {
			out = append(out, '\n')
		}
	}
	return string(out)
}

func appendHexAddr(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return append(dst, buf[i:]...)
}

// noEscapeField mirrors the teacher's noEscapeTable: bytes in this range
// pass through a structured log field untouched.
var noEscapeField = func() (t [256]bool) {
	for i := 0; i <= 0x7e; i++ {
		t[i] = i >= 0x20 && i != '\\' && i != '"'
	}
	return
}()

// FieldString renders raw bytes as a safely escaped, single-line string
// suitable for a structured log field: control characters and quotes are
// backslash-escaped (falling back to \u00xx), and any byte sequence that
// isn't valid UTF-8 is replaced with the literal U+FFFD character (not the
// \ufffd escape encoding/json would write), so arbitrary leaked memory can
// never break a log line's framing.
func FieldString(data []byte) string {
	return escapeBytes(data, false)
}

// escapeBytes is FieldString's implementation, generalized with a
// quoted flag so a caller needing a JSON-string-shaped field (leading and
// trailing '"') can share the same escape walk instead of a parallel copy.
func escapeBytes(data []byte, quoted bool) string {
	s := string(data)

	clean := true
	for i := 0; i < len(s); i++ {
		if !noEscapeField[s[i]] {
			clean = false
			break
		}
	}
	if clean && !quoted {
		return s
	}

	dst := make([]byte, 0, len(s)+2)
	if quoted {
		dst = append(dst, '"')
	}

	start := 0
	for i := 0; i < len(s); {
		b := s[i]

		if b >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				if start < i {
					dst = append(dst, s[start:i]...)
				}
				dst = append(dst, "�"...)
				i += size
				start = i
				continue
			}
			i += size
			continue
		}

		if noEscapeField[b] {
			i++
			continue
		}

		if start < i {
			dst = append(dst, s[start:i]...)
		}
		switch b {
		case '"', '\\':
			dst = append(dst, '\\', b)
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[b>>4], hexDigits[b&0xF])
		}
		i++
		start = i
	}
	if start < len(s) {
		dst = append(dst, s[start:]...)
	}

	if quoted {
		dst = append(dst, '"')
	}
	return string(dst)
}
