package core

import "stockcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	EntityRef          = domain.EntityRef
	StateFlag          = domain.StateFlag
	Transition         = domain.Transition
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	Active     = domain.Active
	NotActive  = domain.NotActive
	Deleted    = domain.Deleted
	NotDeleted = domain.NotDeleted
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
