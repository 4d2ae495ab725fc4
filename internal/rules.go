package internal

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
)

// Rule routes finished decisions to publisher topics. When is a govaluate
// expression over the flattened payload merged with the decision fields
// (outcome, approved, days, ...); `$.`-prefixed JSONPath expressions and
// bare dotted identifiers both resolve against the raw payload.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    string   `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is one topic a decision should be published to.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit    string
	drivers []string
	expr    *govaluate.EvaluableExpression
	params  map[string]string
}

type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

// path tokens rewritten into generated parameter names before compilation:
// JSONPath expressions and dotted/indexed identifiers, neither of which
// govaluate can tokenize itself.
var pathTokenPattern = regexp.MustCompile(`\$\.[A-Za-z0-9_$.\[\]*]+|[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\])+`)

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments")
		}
		if list, ok := args[0].([]interface{}); ok {
			for _, item := range list {
				if item == args[1] {
					return true, nil
				}
			}
			return false, nil
		}
		if text, ok := args[0].(string); ok {
			needle, _ := args[1].(string)
			return strings.Contains(text, needle), nil
		}
		return false, nil
	},
	"like": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("like expects 2 arguments")
		}
		text, _ := args[0].(string)
		pattern, _ := args[1].(string)
		escaped := strings.ReplaceAll(regexp.QuoteMeta(pattern), "%", ".*")
		return regexp.MatchString("^"+escaped+"$", text)
	},
}

func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rewritten, params := rewriteExpression(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("compile rule %d (%q): %w", i, rule.When, err)
		}
		rules = append(rules, compiledRule{
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			params:  params,
		})
	}
	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: cfg.Logger}, nil
}

// Evaluate returns the topics a decision should be published to. A rule
// whose expression references missing fields or fails to evaluate simply
// does not match.
func (r *RuleEngine) Evaluate(decision Decision) []RuleMatch {
	if len(r.rules) == 0 {
		return nil
	}

	base := decisionParams(decision)
	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		params := make(map[string]interface{}, len(base)+len(rule.params))
		for key, value := range base {
			params[key] = value
		}
		missing := false
		for name, token := range rule.params {
			value, ok := lookupPathToken(token, decision.RawObject, base)
			if !ok {
				missing = true
				break
			}
			params[name] = value
		}
		if missing {
			continue
		}
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			if !r.strict && r.logger != nil {
				r.logger.Printf("rule eval failed: %v", err)
			}
			continue
		}
		if ok, _ := result.(bool); ok {
			matches = append(matches, RuleMatch{Topic: rule.emit, Drivers: rule.drivers})
		}
	}
	return matches
}

func decisionParams(decision Decision) map[string]interface{} {
	params := make(map[string]interface{})
	if obj, ok := decision.RawObject.(map[string]interface{}); ok {
		for key, value := range Flatten(obj) {
			params[key] = value
		}
	}
	params["provider"] = decision.Provider
	params["outcome"] = string(decision.Outcome)
	params["outcome_reason"] = decision.OutcomeReason
	params["event_name"] = decision.EventName
	params["status"] = decision.Status
	params["approved"] = decision.Approved
	params["days"] = float64(decision.Days)
	params["user_id"] = decision.UserID
	params["identity_source"] = decision.IdentitySource
	params["provider_payment_id"] = decision.ProviderPaymentID
	params["reference"] = decision.Reference
	params["payer_email"] = decision.PayerEmail
	amount := float64(0)
	if decision.AmountCents != nil {
		amount = float64(*decision.AmountCents)
	}
	params["amount_cents"] = amount
	return params
}

func lookupPathToken(token string, root interface{}, flat map[string]interface{}) (interface{}, bool) {
	if strings.HasPrefix(token, "$.") {
		if root == nil {
			return nil, false
		}
		value, err := jsonpath.Get(token, root)
		if err != nil || value == nil {
			return nil, false
		}
		return value, true
	}
	value, ok := flat[token]
	return value, ok
}

// rewriteExpression replaces path tokens outside string literals with
// generated parameter names and returns the name→token table.
func rewriteExpression(input string) (string, map[string]string) {
	params := make(map[string]string)
	counter := 0
	var out strings.Builder

	for i := 0; i < len(input); {
		ch := input[i]
		if ch == '"' || ch == '\'' {
			j := i + 1
			for j < len(input) {
				if input[j] == '\\' && j+1 < len(input) {
					j += 2
					continue
				}
				if input[j] == ch {
					j++
					break
				}
				j++
			}
			out.WriteString(input[i:j])
			i = j
			continue
		}
		j := i
		for j < len(input) && input[j] != '"' && input[j] != '\'' {
			j++
		}
		segment := pathTokenPattern.ReplaceAllStringFunc(input[i:j], func(token string) string {
			name := fmt.Sprintf("__path%d", counter)
			counter++
			params[name] = token
			// govaluate identifiers cannot start with '_'; bracket-escape
			// the generated name so it parses as a parameter reference.
			return "[" + name + "]"
		})
		out.WriteString(segment)
		i = j
	}
	return out.String(), params
}
