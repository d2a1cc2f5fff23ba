package types

// Action names attached to log context for tracing.
const (
	ActionDatabaseTransactionFailed = "database_transaction_failed"
	ActionStartupRecovery           = "startup_recovery"
	ActionDispatch                  = "dispatch"
	ActionSweep                     = "reconciliation_sweep"
	ActionNotifyFailed              = "notify_failed"
)
