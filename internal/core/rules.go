package core

import "tracecore/pkg/domain"

// Registered rule names. The service maps blocking violations from these
// rules onto the typed error taxonomy.
const (
	RuleLinkAcyclicity       = "link_acyclicity"
	RuleQuantityConservation = "quantity_conservation"
	RuleStatusTransition     = "status_transition"
)

// NewDefaultRulesEngine returns an engine carrying the standard write-time
// validation rules with zero conservation tolerance.
func NewDefaultRulesEngine() *domain.RulesEngine {
	return NewRulesEngineWithTolerance(0)
}

// NewRulesEngineWithTolerance returns the standard rules with a custom
// conservation tolerance.
func NewRulesEngineWithTolerance(tolerance float64) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(AcyclicityRule())
	engine.Register(ConservationRule(tolerance))
	engine.Register(StatusTransitionRule())
	return engine
}
