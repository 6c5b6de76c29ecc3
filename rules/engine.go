package rules

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/liamcoop/wisepay/internal/logger"
	"github.com/liamcoop/wisepay/schema"
)

// costLimit bounds the work of a single rule evaluation.
const costLimit = 1000000

// Engine compiles rule expressions once and evaluates them against recipient
// records. It is safe for concurrent use.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	cache    RulesCache
	programs map[string]cel.Program // ruleID -> compiled program
	mu       sync.RWMutex
}

// NewEnv returns the CEL environment rules are compiled in. Expressions see
// the flat record as `record` and the recipient type as `recipientType`.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("recipientType", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine creates an engine and compiles every active rule in store.
func NewEngine(store RuleStore) (*Engine, error) {
	return NewEngineWithCache(store, NewInMemoryRulesCache(DefaultCacheConfig()))
}

func NewEngineWithCache(store RuleStore, cache RulesCache) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}
	en := &Engine{
		env:      env,
		store:    store,
		cache:    cache,
		programs: make(map[string]cel.Program),
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return en, nil
}

// Check type-checks an expression without keeping the program.
func (en *Engine) Check(expression string) error {
	_, err := en.compile(expression)
	return err
}

func (en *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("compile error: expression must return bool, got %s", ast.OutputType())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// CompileRule compiles expression and registers the program under ruleID.
func (en *Engine) CompileRule(ruleID, expression string) error {
	prog, err := en.compile(expression)
	if err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()
	return nil
}

// CompileAllRules compiles all active rules from the store and primes the cache.
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}
	en.cache.Set(rules)
	return nil
}

// Rules lists every stored rule.
func (en *Engine) Rules() ([]*Rule, error) {
	return en.store.List()
}

// Rule returns one stored rule.
func (en *Engine) Rule(ruleID string) (*Rule, error) {
	return en.store.Get(ruleID)
}

// AddRule validates and compiles r, then stores it. Nothing is kept when the
// store rejects the rule.
func (en *Engine) AddRule(r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := en.store.Get(r.ID); err == nil {
		return fmt.Errorf("rule %s: %w", r.ID, ErrRuleExists)
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRule recompiles and stores r.
func (en *Engine) UpdateRule(r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	prog, err := en.compile(r.Expression)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := en.store.Update(r); err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[r.ID] = prog
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// Seed adds the rules that are not stored yet.
func (en *Engine) Seed(rules []*Rule) error {
	for _, r := range rules {
		err := en.AddRule(r)
		if err != nil && !errors.Is(err, ErrRuleExists) {
			return fmt.Errorf("seed rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// Evaluate runs a single rule against rec.
func (en *Engine) Evaluate(ruleID, recipientType string, rec schema.Record) (*EvaluationResult, error) {
	rule, err := en.store.Get(ruleID)
	if err != nil {
		return nil, err
	}
	res := en.eval(rule, recipientType, rec)
	return res, res.Error
}

// EvaluateAll runs every active rule that applies to recipientType. A failing
// rule does not stop the others.
func (en *Engine) EvaluateAll(recipientType string, rec schema.Record) ([]*EvaluationResult, error) {
	rules := en.cache.Get()
	if rules == nil {
		var err error
		rules, err = en.store.ListActive()
		if err != nil {
			return nil, err
		}
		en.cache.Set(rules)
	}

	results := make([]*EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		if !rule.AppliesTo(recipientType) {
			continue
		}
		results = append(results, en.eval(rule, recipientType, rec))
	}
	return results, nil
}

// Violations evaluates the applicable rules and returns one field error per
// failed rule. A rule that cannot be evaluated counts as failed.
func (en *Engine) Violations(recipientType string, rec schema.Record) ([]schema.FieldError, error) {
	results, err := en.EvaluateAll(recipientType, rec)
	if err != nil {
		return nil, err
	}

	var errs []schema.FieldError
	for _, res := range results {
		if res.Passed {
			continue
		}
		if res.Error != nil {
			logger.Warn("rule evaluation failed", "rule", res.RuleID, "recipientType", recipientType, "error", res.Error.Error())
		}
		errs = append(errs, schema.FieldError{Key: res.Key, Kind: schema.KindRuleViolation, Message: res.Message})
	}
	return errs, nil
}

func (en *Engine) eval(rule *Rule, recipientType string, rec schema.Record) *EvaluationResult {
	res := &EvaluationResult{RuleID: rule.ID, RuleName: rule.Name, Key: rule.Key}

	en.mu.RLock()
	prog, exists := en.programs[rule.ID]
	en.mu.RUnlock()

	if !exists {
		res.Error = fmt.Errorf("rule %s is not compiled", rule.ID)
		res.Message = renderMessage(rule, rec)
		return res
	}

	if rec == nil {
		rec = schema.Record{}
	}
	out, details, err := prog.Eval(map[string]any{
		"record":        map[string]string(rec),
		"recipientType": recipientType,
	})
	if details != nil {
		res.Trace = details.State()
	}
	if err != nil {
		res.Error = err
		res.Message = renderMessage(rule, rec)
		return res
	}

	if passed, ok := out.Value().(bool); ok && passed {
		res.Passed = true
		return res
	}
	res.Message = renderMessage(rule, rec)
	return res
}

// renderMessage fills {key} placeholders with record values.
func renderMessage(rule *Rule, rec schema.Record) string {
	msg := rule.Message
	if msg == "" {
		msg = fmt.Sprintf("%s failed rule %s", rule.Key, rule.Name)
	}
	if !strings.Contains(msg, "{") {
		return msg
	}

	pairs := make([]string, 0, 2*len(rec))
	for k, v := range rec {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
