package transcript

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultPassLimit = 30

// Substitutions rewrites commonly misheard phrases before a transcript is
// committed. Rules come from a plain text file, one per line:
//
//	pull request => PR
//	s/\bdeep\s*gram\b/Deepgram/g
//
// Literal rules match case-insensitively everywhere. sed-style rules replace
// the first match unless flagged g; matching is case-insensitive by default.
type Substitutions struct {
	rules     []substitution
	passLimit int
}

type substitution struct {
	re          *regexp.Regexp
	replacement string
	firstOnly   bool
}

// LoadSubstitutions reads a rules file. A blank path or a missing file yields
// an empty rule set.
func LoadSubstitutions(path string, passLimit int) (*Substitutions, error) {
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}
	subs := &Substitutions{passLimit: passLimit}

	if strings.TrimSpace(path) == "" {
		return subs, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return subs, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	rules, err := ParseSubstitutions(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	subs.rules = rules.rules
	return subs, nil
}

// ParseSubstitutions compiles rules from text.
func ParseSubstitutions(contents string) (*Substitutions, error) {
	subs := &Substitutions{passLimit: defaultPassLimit}
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			rule substitution
			err  error
		)
		switch {
		case isSedRule(line):
			rule, err = parseSedRule(line)
		case strings.Contains(line, "=>"):
			rule, err = parseLiteral(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		subs.rules = append(subs.rules, rule)
	}
	return subs, nil
}

// Len returns the number of compiled rules.
func (s *Substitutions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Apply runs all rules repeatedly until the text stops changing or the pass
// limit is reached.
func (s *Substitutions) Apply(text string) (string, error) {
	if s.Len() == 0 {
		return text, nil
	}

	result := text
	for pass := 0; pass < s.passLimit; pass++ {
		changed := false
		for _, rule := range s.rules {
			if next := rule.apply(result); next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}

func (r substitution) apply(input string) string {
	if !r.firstOnly {
		return r.re.ReplaceAllString(input, r.replacement)
	}
	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input
	}
	var expanded []byte
	expanded = r.re.ExpandString(expanded, r.replacement, input, loc)
	return input[:loc[0]] + string(expanded) + input[loc[1]:]
}

func parseLiteral(line string) (substitution, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return substitution{}, errors.New("literal rule source cannot be empty")
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return substitution{}, fmt.Errorf("invalid literal source: %w", err)
	}
	return substitution{re: re, replacement: escapeDollar(strings.TrimSpace(to))}, nil
}

// parseSedRule handles s<d>pattern<d>replacement<d>flags.
func parseSedRule(line string) (substitution, error) {
	delim := line[1]
	parts, rest, err := splitDelimited(line[2:], delim, 2)
	if err != nil {
		return substitution{}, err
	}

	caseFlags := "i"
	global := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			caseFlags += string(flag)
		case ' ':
		default:
			return substitution{}, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + caseFlags + ")" + parts[0])
	if err != nil {
		return substitution{}, fmt.Errorf("invalid regex: %w", err)
	}
	return substitution{re: re, replacement: parts[1], firstOnly: !global}, nil
}

// splitDelimited reads n delimiter-terminated fields, honoring backslash
// escapes, and returns the remainder.
func splitDelimited(input string, delim byte, n int) ([]string, string, error) {
	fields := make([]string, 0, n)
	var field strings.Builder
	escaped := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case escaped:
			escaped = false
			field.WriteByte(c)
		case c == '\\':
			escaped = true
			field.WriteByte(c)
		case c == delim:
			fields = append(fields, field.String())
			field.Reset()
			if len(fields) == n {
				return fields, input[i+1:], nil
			}
		default:
			field.WriteByte(c)
		}
	}
	return nil, "", errors.New("unterminated expression")
}

func isSedRule(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	d := line[1]
	return !(d == ' ' || d == '\t' || d >= 'a' && d <= 'z' || d >= 'A' && d <= 'Z' || d >= '0' && d <= '9')
}

func escapeDollar(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
