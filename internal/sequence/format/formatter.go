package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

const DefaultReceiptNumberTemplate = "RCPT-{SEQ6}"

// FormatReceiptNumber renders a receipt number from template, the
// allocation time, the scope code and the sequence value. It has no side
// effects.
//
// Supported tokens: {YYYY} {YY} {MM} {DD} {SCOPE} {SEQ} {SEQn}.
func FormatReceiptNumber(
	template string,
	at time.Time,
	scopeCode string,
	seq int64,
) (string, error) {

	if template == "" {
		return "", fmt.Errorf("receipt number template is empty")
	}

	if seq <= 0 {
		return "", fmt.Errorf("invalid receipt sequence: %d", seq)
	}

	if !strings.Contains(template, "{SEQ") {
		return "", fmt.Errorf("receipt number template has no sequence token: %s", template)
	}

	out := template

	out = strings.ReplaceAll(out, "{YYYY}", at.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", at.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", at.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", at.Format("02"))
	out = strings.ReplaceAll(out, "{SCOPE}", strings.ToUpper(strings.TrimSpace(scopeCode)))

	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 || width > 18 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in receipt format: %s", out)
	}

	return out, nil
}
