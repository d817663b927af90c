// Package validator enforces the read-only SQL policy applied to every
// statement before it reaches a database connection. Validation is pure:
// the verdict for a statement depends only on its text and the
// validator's configuration, never on database state.
package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rule identifiers reported in verdicts.
const (
	RuleEmptyStatement  = "EMPTY_STATEMENT"
	RuleStatementLength = "STATEMENT_LENGTH"
	RuleUnbalanced      = "UNBALANCED_SYNTAX"
	RuleNotReadOnly     = "NOT_READ_ONLY"
	RuleMultiStatement  = "MULTI_STATEMENT"
	RuleDeniedKeyword   = "DENIED_KEYWORD"
	RuleObfuscation     = "COMMENT_OBFUSCATION"
	RuleLimitExceeded   = "LIMIT_EXCEEDED"
)

// deniedKeywords are rejected anywhere outside string or identifier
// literals. Matching is whole-word and case-insensitive.
var deniedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "EXEC", "EXECUTE", "CALL",
	"ATTACH", "DETACH", "COPY", "EXPORT", "MERGE", "REPLACE",
	"VACUUM", "PRAGMA", "INSTALL", "LOAD",
	"OUTFILE", "DUMPFILE", "LOAD_FILE",
}

var (
	keywordRe = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(deniedKeywords))
		for _, kw := range deniedKeywords {
			m[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
		}
		return m
	}()
)

// Violation names a rule the statement broke and how.
type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// Verdict is the outcome of validating one statement. When the
// statement is allowed, NormalizedSQL carries the text to execute,
// which may differ from the input by an injected LIMIT clause.
type Verdict struct {
	SQL           string      `json:"sql"`
	NormalizedSQL string      `json:"normalized_sql,omitempty"`
	Allowed       bool        `json:"allowed"`
	Violations    []Violation `json:"violations,omitempty"`
}

// Reason renders the violations for error messages and trace entries.
func (v Verdict) Reason() string {
	if v.Allowed {
		return ""
	}
	parts := make([]string, 0, len(v.Violations))
	for _, viol := range v.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", viol.Rule, viol.Detail))
	}
	return strings.Join(parts, "; ")
}

// Validator applies the read-only policy. The zero value is not usable;
// construct with New.
type Validator struct {
	maxLength int
	rowCeil   int
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxLength overrides the maximum statement length in bytes.
func WithMaxLength(n int) Option {
	return func(v *Validator) { v.maxLength = n }
}

// WithRowCeiling overrides the LIMIT ceiling injected into statements.
func WithRowCeiling(n int) Option {
	return func(v *Validator) { v.rowCeil = n }
}

// Defaults for statement length and the row ceiling.
const (
	DefaultMaxLength  = 10000
	DefaultRowCeiling = 10000
)

// New constructs a Validator with the given options.
func New(opts ...Option) *Validator {
	v := &Validator{maxLength: DefaultMaxLength, rowCeil: DefaultRowCeiling}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RowCeiling returns the configured LIMIT ceiling.
func (v *Validator) RowCeiling() int {
	return v.rowCeil
}

// Validate applies every rule to the statement and returns a verdict.
// All violated rules are reported, not only the first.
func (v *Validator) Validate(sql string) Verdict {
	verdict := Verdict{SQL: sql}
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" {
		verdict.Violations = append(verdict.Violations, Violation{
			Rule:   RuleEmptyStatement,
			Detail: "statement is empty",
		})
		return verdict
	}
	if len(trimmed) > v.maxLength {
		verdict.Violations = append(verdict.Violations, Violation{
			Rule:   RuleStatementLength,
			Detail: fmt.Sprintf("statement is %d bytes, maximum is %d", len(trimmed), v.maxLength),
		})
		return verdict
	}
	if detail, ok := checkBalanced(trimmed); !ok {
		verdict.Violations = append(verdict.Violations, Violation{
			Rule:   RuleUnbalanced,
			Detail: detail,
		})
		return verdict
	}

	stripped := stripComments(trimmed, " ")
	bare := blankLiterals(stripped)
	// Removing comments without a separator fuses tokens that were
	// split across a comment (DR/**/OP), which is how obfuscated
	// keywords are detected.
	fused := blankLiterals(stripComments(trimmed, ""))

	upper := strings.ToUpper(strings.TrimSpace(stripped))
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		verdict.Violations = append(verdict.Violations, Violation{
			Rule:   RuleNotReadOnly,
			Detail: "only SELECT and WITH statements are allowed",
		})
	}
	if strings.Contains(bare, ";") {
		verdict.Violations = append(verdict.Violations, Violation{
			Rule:   RuleMultiStatement,
			Detail: "multiple statements are not allowed",
		})
	}

	// Keywords are scanned on literal-blanked text so statements that
	// merely mention a keyword inside a string are not rejected.
	for _, kw := range deniedKeywords {
		switch {
		case keywordRe[kw].MatchString(bare):
			verdict.Violations = append(verdict.Violations, Violation{
				Rule:   RuleDeniedKeyword,
				Detail: fmt.Sprintf("keyword %s is not allowed", kw),
			})
		case keywordRe[kw].MatchString(fused):
			verdict.Violations = append(verdict.Violations, Violation{
				Rule:   RuleObfuscation,
				Detail: fmt.Sprintf("keyword %s assembled through comments", kw),
			})
		}
	}

	if len(verdict.Violations) > 0 {
		return verdict
	}

	normalized, err := v.enforceLimit(stripped)
	if err != nil {
		verdict.Violations = append(verdict.Violations, Violation{
			Rule:   RuleLimitExceeded,
			Detail: err.Error(),
		})
		return verdict
	}

	verdict.Allowed = true
	verdict.NormalizedSQL = normalized
	return verdict
}

// enforceLimit injects a LIMIT at the ceiling when the statement has
// none, and rejects an explicit LIMIT above the ceiling rather than
// silently clamping it.
func (v *Validator) enforceLimit(sql string) (string, error) {
	sql = strings.TrimSpace(sql)
	val, found := topLevelLimit(blankLiterals(sql))
	if !found {
		return fmt.Sprintf("%s LIMIT %d", sql, v.rowCeil), nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("LIMIT value %q is not a positive integer", val)
	}
	if n > v.rowCeil {
		return "", fmt.Errorf("LIMIT %d exceeds the ceiling of %d", n, v.rowCeil)
	}
	return sql, nil
}

// topLevelLimit finds a LIMIT clause outside all parentheses. A
// subquery's LIMIT bounds only the subquery and must not suppress
// injection on the outer statement.
func topLevelLimit(sql string) (string, bool) {
	depth := 0
	for i := 0; i+5 <= len(sql); i++ {
		switch sql[i] {
		case '(':
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth != 0 || !strings.EqualFold(sql[i:i+5], "limit") {
			continue
		}
		if i > 0 && isWordByte(sql[i-1]) {
			continue
		}
		if i+5 < len(sql) && isWordByte(sql[i+5]) {
			continue
		}
		j := i + 5
		for j < len(sql) && (sql[j] == ' ' || sql[j] == '\t' || sql[j] == '\n' || sql[j] == '\r') {
			j++
		}
		start := j
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		if j > start {
			return sql[start:j], true
		}
	}
	return "", false
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// stripComments removes line (--) and block (/* */) comments, replacing
// each with sep. Comment markers inside string or identifier literals
// are left alone.
func stripComments(sql string, sep string) string {
	var b strings.Builder
	b.Grow(len(sql))
	var inSingle, inDouble bool
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inSingle:
			b.WriteByte(c)
			if c == '\'' {
				inSingle = false
			}
		case inDouble:
			b.WriteByte(c)
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
			b.WriteByte(c)
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteString(sep)
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i += 2
			for i+1 < len(sql) && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i++ // skip the closing '/'
			b.WriteString(sep)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// blankLiterals replaces the contents of string and identifier literals
// with spaces so pattern scans only see structural SQL.
func blankLiterals(sql string) string {
	out := []byte(sql)
	var inSingle, inDouble bool
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				out[i] = ' '
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else {
				out[i] = ' '
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		}
	}
	return string(out)
}

// checkBalanced verifies quotes and parentheses pair up. Unbalanced
// statements are rejected before any keyword scan since the literal
// scanner cannot classify them reliably.
func checkBalanced(sql string) (string, bool) {
	var singles, doubles, depth int
	var inSingle, inDouble bool
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
				singles++
			}
		case inDouble:
			if c == '"' {
				inDouble = false
				doubles++
			}
		case c == '\'':
			inSingle = true
			singles++
		case c == '"':
			inDouble = true
			doubles++
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return "unmatched closing parenthesis", false
			}
		}
	}
	if inSingle {
		return "unterminated string literal", false
	}
	if inDouble {
		return "unterminated quoted identifier", false
	}
	if depth != 0 {
		return "unbalanced parentheses", false
	}
	return "", true
}
