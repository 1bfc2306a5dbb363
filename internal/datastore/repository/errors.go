package repository

import "github.com/regwatch/regwatch/internal/errors"

// Sentinel errors returned by repositories. The API layer maps these to
// 404/409 responses.
var (
	ErrRuleNotFound      = errors.NewStd("compliance rule not found")
	ErrExecutionNotFound = errors.NewStd("rule execution not found")
	ErrAlertNotFound     = errors.NewStd("alert not found")
	ErrWarningNotFound   = errors.NewStd("preventive warning not found")

	// ErrExecutionFinished guards ledger immutability: a finished
	// execution can never transition again.
	ErrExecutionFinished = errors.NewStd("rule execution already finished")

	// ErrDuplicateAlert is returned when an open alert or pending warning
	// already covers the dedup key.
	ErrDuplicateAlert = errors.NewStd("open alert already covers dedup key")

	// ErrAlertResolved guards the alert state machine: resolved is
	// terminal for both acknowledge and intervene.
	ErrAlertResolved = errors.NewStd("alert is already resolved")
)
