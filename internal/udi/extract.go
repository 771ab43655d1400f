// Package udi extracts device identifiers from human-readable UDI strings.
package udi

import "strings"

const gtinLength = 14

// symbology identifiers a scanner may prepend to GS1 data.
var symbologyPrefixes = []string{"]d2", "]C1", "]e0", "]Q3"}

// ExtractDI returns the device identifier carried by a public UDI string, or ""
// when none can be recognised. Supported encodings:
//
//	GS1 human-readable   (01)00643169007222(17)141120(10)7654321D
//	GS1 element string   0100643169007222172011...
//	HIBCC                +H123PARTNO1/$$420020216LOT123
func ExtractDI(public string) string {
	s := strings.TrimSpace(public)
	if s == "" {
		return ""
	}
	for _, prefix := range symbologyPrefixes {
		s = strings.TrimPrefix(s, prefix)
	}
	switch {
	case strings.HasPrefix(s, "+"):
		return hibccDI(s)
	case strings.Contains(s, "(01)"):
		idx := strings.Index(s, "(01)")
		return digitsAt(s[idx+len("(01)"):])
	case strings.HasPrefix(s, "01"):
		return digitsAt(s[2:])
	default:
		return ""
	}
}

func digitsAt(s string) string {
	if len(s) < gtinLength {
		return ""
	}
	candidate := s[:gtinLength]
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			return ""
		}
	}
	return candidate
}

// hibccDI takes the primary data structure (labeler code, product number and
// unit of measure) of a HIBCC label. Without secondary data the trailing check
// character belongs to the primary structure and is dropped.
func hibccDI(s string) string {
	body := strings.TrimPrefix(s, "+")
	if slash := strings.IndexByte(body, '/'); slash >= 0 {
		body = body[:slash]
	} else if len(body) > 0 {
		body = body[:len(body)-1]
	}
	body = strings.ToUpper(strings.TrimSpace(body))
	// labeler (4) + product (>=1) + unit of measure (1)
	if len(body) < 6 {
		return ""
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if !isDigit(c) && (c < 'A' || c > 'Z') {
			return ""
		}
	}
	if !isLetter(body[0]) {
		return ""
	}
	return body
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
