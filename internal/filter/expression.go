package filter

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// The expression language is a small boolean DSL evaluated against the
// decoded parameter bag of a single event, function call, or transaction.
//
//	grammar:  expr   := term ("OR" term)*
//	          term   := factor ("AND" factor)*
//	          factor := "(" expr ")" | comparison
//	          comparison := path op literal
//
// OR binds looser than AND. Paths resolve parameters by name, by position
// ("0", "1", ...), or through a dotted key into a Map-kinded parameter.
// Every failure mode (unknown parameter, unparseable literal, unknown
// operator) evaluates to false rather than erroring, so one malformed
// condition cannot take a monitor down.

// comparison operators, longest first so ">=" is not split as ">".
var comparisonOps = []string{"==", "!=", ">=", "<=", ">", "<", "contains", "starts_with", "ends_with"}

// paramBag indexes decoded parameters by name and, when positional, by
// decimal index.
type paramBag map[string]models.MatchParam

// newParamBag builds the lookup bag. Named parameters are reachable by name;
// every parameter is also reachable by its position.
func newParamBag(params []models.MatchParam) paramBag {
	bag := make(paramBag, len(params)*2)
	for i, p := range params {
		bag[strconv.Itoa(i)] = p
		if p.Name != "" {
			bag[p.Name] = p
		}
	}
	return bag
}

// EvaluateExpression evaluates expr against the parameter list. An empty
// expression is vacuously true; any evaluation failure is false.
func EvaluateExpression(expr string, params []models.MatchParam) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	return evalOr(expr, newParamBag(params))
}

func evalOr(expr string, bag paramBag) bool {
	for _, term := range splitKeyword(expr, "OR") {
		if evalAnd(term, bag) {
			return true
		}
	}
	return false
}

func evalAnd(expr string, bag paramBag) bool {
	parts := splitKeyword(expr, "AND")
	if len(parts) == 0 {
		return false
	}
	for _, factor := range parts {
		if !evalFactor(factor, bag) {
			return false
		}
	}
	return true
}

func evalFactor(expr string, bag paramBag) bool {
	expr = strings.TrimSpace(expr)
	if inner, ok := stripOuterParens(expr); ok {
		return evalOr(inner, bag)
	}
	path, op, literal, ok := splitComparison(expr)
	if !ok {
		return false
	}
	param, ok := resolvePath(path, bag)
	if !ok {
		return false
	}
	return compare(param, op, literal)
}

// splitKeyword splits expr on the standalone keyword at paren depth zero and
// outside quoted strings. Returns expr unsplit as a single element when the
// keyword never occurs at top level.
func splitKeyword(expr string, keyword string) []string {
	var (
		parts   []string
		depth   int
		quote   rune
		start   int
		runes   = []rune(expr)
		keyLen  = len(keyword)
	)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case depth == 0 && matchesKeyword(runes, i, keyword):
			parts = append(parts, strings.TrimSpace(string(runes[start:i])))
			i += keyLen - 1
			start = i + 1
		}
	}
	parts = append(parts, strings.TrimSpace(string(runes[start:])))
	return parts
}

// matchesKeyword reports whether keyword occurs at i delimited by whitespace
// on both sides.
func matchesKeyword(runes []rune, i int, keyword string) bool {
	if i == 0 || i+len(keyword) >= len(runes) {
		return false
	}
	if !isSpace(runes[i-1]) || !isSpace(runes[i+len(keyword)]) {
		return false
	}
	return string(runes[i:i+len(keyword)]) == keyword
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

// stripOuterParens removes one pair of parentheses when they wrap the whole
// expression.
func stripOuterParens(expr string) (string, bool) {
	if len(expr) < 2 || expr[0] != '(' || expr[len(expr)-1] != ')' {
		return "", false
	}
	depth := 0
	quote := rune(0)
	for i, r := range expr {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth == 0 && i != len(expr)-1 {
				return "", false
			}
		}
	}
	if depth != 0 {
		return "", false
	}
	return strings.TrimSpace(expr[1 : len(expr)-1]), true
}

// splitComparison breaks "path op literal" on the first operator occurring
// outside quotes. Word operators (contains, starts_with, ends_with) must be
// whitespace-delimited.
func splitComparison(expr string) (path, op, literal string, ok bool) {
	runes := []rune(expr)
	quote := rune(0)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		if r == '\'' || r == '"' {
			quote = r
			continue
		}
		for _, candidate := range comparisonOps {
			if !strings.HasPrefix(string(runes[i:]), candidate) {
				continue
			}
			if isWordOp(candidate) && !matchesKeyword(runes, i, candidate) {
				continue
			}
			path = strings.TrimSpace(string(runes[:i]))
			literal = strings.TrimSpace(string(runes[i+len(candidate):]))
			if path == "" || literal == "" {
				return "", "", "", false
			}
			return path, candidate, unquote(literal), true
		}
	}
	return "", "", "", false
}

func isWordOp(op string) bool {
	return op == "contains" || op == "starts_with" || op == "ends_with"
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// resolvePath finds the parameter a path names. A dotted path first tries a
// literal parameter of that full name, then descends into a Map or Vec
// parameter by parsing its JSON-encoded value.
func resolvePath(path string, bag paramBag) (models.MatchParam, bool) {
	if p, ok := bag[path]; ok {
		return p, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return models.MatchParam{}, false
	}
	p, ok := bag[head]
	if !ok {
		return models.MatchParam{}, false
	}
	return descendJSON(p, rest)
}

// descendJSON walks the remaining dotted segments through the parameter's
// JSON-encoded value and synthesizes a parameter for the leaf, inferring the
// kind from the JSON type.
func descendJSON(p models.MatchParam, rest string) (models.MatchParam, bool) {
	var node any
	if err := json.Unmarshal([]byte(p.Value), &node); err != nil {
		return models.MatchParam{}, false
	}
	for _, seg := range strings.Split(rest, ".") {
		switch v := node.(type) {
		case map[string]any:
			child, ok := v[seg]
			if !ok {
				return models.MatchParam{}, false
			}
			node = child
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return models.MatchParam{}, false
			}
			node = v[idx]
		default:
			return models.MatchParam{}, false
		}
	}
	switch v := node.(type) {
	case string:
		return models.MatchParam{Name: rest, Value: v, Kind: "string"}, true
	case bool:
		return models.MatchParam{Name: rest, Value: strconv.FormatBool(v), Kind: "bool"}, true
	case json.Number:
		return models.MatchParam{Name: rest, Value: v.String(), Kind: "int256"}, true
	case float64:
		return models.MatchParam{Name: rest, Value: strconv.FormatFloat(v, 'f', -1, 64), Kind: "int256"}, true
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return models.MatchParam{}, false
		}
		return models.MatchParam{Name: rest, Value: string(encoded), Kind: "string"}, true
	}
}

// compare applies op to the parameter value and the literal, coercing both
// sides by the parameter's kind.
func compare(p models.MatchParam, op, literal string) bool {
	switch kindClass(p.Kind) {
	case classNumeric:
		return compareNumeric(p.Value, op, literal)
	case classAddress:
		return compareAddress(p.Value, op, literal)
	case classBool:
		return compareBool(p.Value, op, literal)
	case classVec:
		return compareVec(p.Value, op, literal)
	default:
		return compareString(p.Value, op, literal)
	}
}

type kindClassTag int

const (
	classString kindClassTag = iota
	classNumeric
	classAddress
	classBool
	classVec
)

// kindClass collapses chain-level type tags into comparison classes. EVM
// kinds come from ABI type strings (uint256, address, bool, bytes32, ...);
// Stellar kinds are value tags (I128, U64, Address, Symbol, Vec, Map, ...).
func kindClass(kind string) kindClassTag {
	k := strings.ToLower(kind)
	switch {
	case k == "address":
		return classAddress
	case k == "bool":
		return classBool
	case k == "vec" || strings.HasSuffix(k, "[]"):
		return classVec
	case strings.HasPrefix(k, "uint"), strings.HasPrefix(k, "int"),
		k == "i128", k == "u128", k == "i64", k == "u64",
		k == "i32", k == "u32", k == "timepoint", k == "duration":
		return classNumeric
	default:
		return classString
	}
}

func compareNumeric(value, op, literal string) bool {
	a, okA := new(big.Int).SetString(strings.TrimSpace(value), 10)
	b, okB := new(big.Int).SetString(strings.TrimSpace(literal), 10)
	if !okA || !okB {
		return false
	}
	cmp := a.Cmp(b)
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

func compareAddress(value, op, literal string) bool {
	switch op {
	case "==":
		return models.SameAddress(value, literal)
	case "!=":
		return !models.SameAddress(value, literal)
	}
	return false
}

func compareBool(value, op, literal string) bool {
	a, errA := strconv.ParseBool(strings.ToLower(strings.TrimSpace(value)))
	b, errB := strconv.ParseBool(strings.ToLower(strings.TrimSpace(literal)))
	if errA != nil || errB != nil {
		return false
	}
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}

func compareString(value, op, literal string) bool {
	switch op {
	case "==":
		return strings.EqualFold(value, literal)
	case "!=":
		return !strings.EqualFold(value, literal)
	case "contains":
		return strings.Contains(strings.ToLower(value), strings.ToLower(literal))
	case "starts_with":
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(literal))
	case "ends_with":
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(literal))
	}
	return false
}

// compareVec treats the value as a rendered list. "contains" tests element
// membership; equality compares the whole rendering.
func compareVec(value, op, literal string) bool {
	switch op {
	case "==":
		return value == literal
	case "!=":
		return value != literal
	case "contains":
		for _, elem := range vecElements(value) {
			if strings.EqualFold(elem, literal) {
				return true
			}
		}
		return false
	}
	return false
}

// vecElements splits a rendered list. JSON arrays are parsed properly; the
// bare "[a,b,c]" rendering is split on commas.
func vecElements(value string) []string {
	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			switch e := v.(type) {
			case string:
				out = append(out, e)
			case float64:
				out = append(out, strconv.FormatFloat(e, 'f', -1, 64))
			case bool:
				out = append(out, strconv.FormatBool(e))
			default:
				encoded, _ := json.Marshal(e)
				out = append(out, string(encoded))
			}
		}
		return out
	}
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ValidateExpression parses expr without evaluating it, used by config
// validation to reject malformed monitor conditions at load time.
func ValidateExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	return validateOr(expr)
}

func validateOr(expr string) error {
	for _, term := range splitKeyword(expr, "OR") {
		for _, factor := range splitKeyword(term, "AND") {
			if err := validateFactor(factor); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateFactor(expr string) error {
	expr = strings.TrimSpace(expr)
	if inner, ok := stripOuterParens(expr); ok {
		return validateOr(inner)
	}
	if _, _, _, ok := splitComparison(expr); !ok {
		return &ExpressionError{Expression: expr}
	}
	return nil
}

// ExpressionError reports an unparseable comparison inside an expression.
type ExpressionError struct {
	Expression string
}

func (e *ExpressionError) Error() string {
	return "filter: malformed comparison " + strconv.Quote(e.Expression)
}
