package rules

import (
	"fmt"
	"strconv"
	"strings"

	"netwatch/internal/model"
)

// Reason explains why a rule line was rejected
type Reason string

const (
	ReasonEmpty          Reason = "empty"
	ReasonNotAlert       Reason = "not_alert"
	ReasonBadHeader      Reason = "bad_header"
	ReasonMissingOptions Reason = "missing_options"
)

// ParseError is returned for a rule line that cannot produce a Rule.
// Loading treats it as recoverable.
type ParseError struct {
	File   string
	Line   int
	Reason Reason
	Text   string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s: %q", e.File, e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Text)
}

const headerTokens = 7

// ParseRule parses one trimmed, non-comment rule line of the form
//
//	alert <proto> <src> <sport> <dir> <dst> <dport> (key:"value"; key:value; flag;)
//
// Individual options that cannot be parsed are dropped and listed in Rule.Skipped.
func ParseRule(line string) (*model.Rule, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, &ParseError{Reason: ReasonEmpty, Text: line}
	}

	// text after the closing parenthesis, such as a trailing comment, is ignored
	open := strings.Index(line, "(")
	end := strings.LastIndex(line, ")")
	if open < 0 || end < open {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] != "alert" {
			return nil, &ParseError{Reason: ReasonNotAlert, Text: line}
		}
		return nil, &ParseError{Reason: ReasonMissingOptions, Text: line}
	}

	header := strings.Fields(line[:open])
	if len(header) == 0 || header[0] != "alert" {
		return nil, &ParseError{Reason: ReasonNotAlert, Text: line}
	}
	if len(header) != headerTokens {
		return nil, &ParseError{Reason: ReasonBadHeader, Text: line}
	}

	rule := &model.Rule{
		Action:      header[0],
		Protocol:    header[1],
		Source:      header[2],
		SourcePort:  header[3],
		Direction:   header[4],
		Destination: header[5],
		DestPort:    header[6],
		Raw:         line,
	}

	body := line[open+1 : end]
	for _, fragment := range splitOptions(body) {
		if !applyOption(rule, fragment) {
			rule.Skipped = append(rule.Skipped, fragment)
		}
	}

	return rule, nil
}

// splitOptions splits the option block on ';' outside double quotes
func splitOptions(body string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
		escaped bool
	)

	flush := func() {
		if opt := strings.TrimSpace(current.String()); opt != "" {
			parts = append(parts, opt)
		}
		current.Reset()
	}

	for _, r := range body {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			current.WriteRune(r)
			escaped = true
		case r == '"':
			current.WriteRune(r)
			quoted = !quoted
		case r == ';' && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return parts
}

func applyOption(rule *model.Rule, fragment string) bool {
	key, value, hasValue := strings.Cut(fragment, ":")
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	if !hasValue {
		rule.Options.Flags = append(rule.Options.Flags, key)
		return true
	}

	value = unquote(strings.TrimSpace(value))

	switch key {
	case "msg":
		rule.Options.Msg = &value
	case "sid":
		rule.Options.Sid = &value
	case "classtype":
		rule.Options.Classtype = &value
	case "content":
		rule.Options.Content = &value
	case "dsize":
		spec, err := parseDsize(value)
		if err != nil {
			return false
		}
		rule.Options.Dsize = spec
	default:
		rule.Options.Extra = append(rule.Options.Extra, model.RuleOption{Key: key, Value: value})
	}

	return true
}

func unquote(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		value = value[1 : len(value)-1]
	}
	return strings.NewReplacer(`\"`, `"`, `\;`, `;`, `\\`, `\`).Replace(value)
}

func parseDsize(value string) (*model.DsizeSpec, error) {
	if value == "" {
		return nil, fmt.Errorf("empty dsize")
	}

	var op model.DsizeOp
	switch value[0] {
	case '>':
		op = model.DsizeGreater
	case '<':
		op = model.DsizeLess
	default:
		return nil, fmt.Errorf("dsize %q: unsupported comparator", value)
	}

	bound, err := strconv.Atoi(strings.TrimSpace(value[1:]))
	if err != nil {
		return nil, fmt.Errorf("dsize %q: %w", value, err)
	}
	if bound < 0 {
		return nil, fmt.Errorf("dsize %q: negative bound", value)
	}

	return &model.DsizeSpec{Op: op, Bound: bound}, nil
}
