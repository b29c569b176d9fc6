// Package redact masks sensitive substrings (API keys, emails, phone numbers,
// IP addresses, card numbers) with "[REDACTED:<label>]" placeholders.
//
// Redaction is best-effort and pattern based. It is not a security boundary.
package redact

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Pattern is a caller-supplied expression and the label used in its placeholder.
type Pattern struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"pattern" yaml:"pattern"`
}

type layer struct {
	re          *regexp.Regexp
	replacement string
	// starts, when set, marks a digit-bounded layer: re is anchored and is
	// tried only at positions holding one of these bytes.
	starts string
}

// Redactor applies the built-in layers followed by any custom patterns.
// It holds only compiled expressions and is safe for concurrent use.
type Redactor struct {
	creditCard *regexp.Regexp
	layers     []layer
}

// New compiles the built-in layers and the given custom patterns.
func New(custom ...Pattern) (*Redactor, error) {
	r := &Redactor{
		creditCard: regexp.MustCompile(creditCardExpr),
		layers: []layer{
			{re: regexp.MustCompile(apiKeyExpr), replacement: Placeholder(LabelAPIKey)},
			{re: regexp.MustCompile(emailExpr), replacement: Placeholder(LabelEmail)},
			{re: digitBounded(phoneExpr), replacement: Placeholder(LabelPhone), starts: phoneStarts},
			{re: regexp.MustCompile(ipv4Expr), replacement: Placeholder(LabelIPAddress)},
			{re: regexp.MustCompile(ipv6Expr), replacement: Placeholder(LabelIPAddress)},
		},
	}
	for _, p := range custom {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("redact pattern %q: name is required", p.Expr)
		}
		if p.Expr == "" {
			return nil, fmt.Errorf("redact pattern %q: expression is required", p.Name)
		}
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p.Name, err)
		}
		r.layers = append(r.layers, layer{re: re, replacement: Placeholder(p.Name)})
	}
	return r, nil
}

// Placeholder returns the replacement text for label.
func Placeholder(label string) string {
	return "[REDACTED:" + label + "]"
}

// Redact returns text with every sensitive match replaced. Surrounding text is kept verbatim.
func (r *Redactor) Redact(text string) string {
	if text == "" {
		return text
	}
	// Cards go first so spaced digit groups aren't taken by the phone layer.
	text = r.creditCard.ReplaceAllStringFunc(text, func(m string) string {
		if isCardNumber(m) {
			return Placeholder(LabelCreditCard)
		}
		return m
	})
	for _, l := range r.layers {
		if l.starts != "" {
			text = replaceDigitBounded(l.re, l.starts, text, l.replacement)
			continue
		}
		text = l.re.ReplaceAllLiteralString(text, l.replacement)
	}
	return text
}

// digitBounded anchors expr and requires a non-digit or the end of input
// after it. Group 1 is the match itself.
func digitBounded(expr string) *regexp.Regexp {
	return regexp.MustCompile(`^(` + expr + `)(?:[^0-9]|$)`)
}

// replaceDigitBounded replaces matches of an anchored digitBounded expression
// that are not preceded by an ASCII digit. Every start position is tried, so a
// rejected candidate does not hide a valid match that begins inside it.
func replaceDigitBounded(re *regexp.Regexp, starts, text, replacement string) string {
	var b strings.Builder
	last := 0
	for pos := 0; pos < len(text); {
		if (pos > 0 && isDigit(text[pos-1])) || strings.IndexByte(starts, text[pos]) < 0 {
			pos++
			continue
		}
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			pos++
			continue
		}
		if last == 0 {
			b.Grow(len(text))
		}
		end := pos + loc[3]
		b.WriteString(text[last:pos])
		b.WriteString(replacement)
		last = end
		pos = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isCardNumber(raw string) bool {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if isDigit(raw[i]) {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhn(digits)
}

// luhn validates a digit sequence with the Luhn checksum.
func luhn(digits []byte) bool {
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if (len(digits)-1-i)%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

var (
	defaultOnce     sync.Once
	defaultRedactor *Redactor
)

// Redact applies the built-in layers only.
func Redact(text string) string {
	defaultOnce.Do(func() {
		defaultRedactor, _ = New()
	})
	return defaultRedactor.Redact(text)
}
