package error

import "errors"

var (
	ErrDebuggerNotStarted = errors.New("debug session is not started")
	ErrTargetRunning      = errors.New("target is running")
	ErrTargetNotRunning   = errors.New("target is not running")
	ErrServerStartTimeout = errors.New("gdb server did not report readiness in time")
	ErrReferenceNotFound  = errors.New("variable reference not found")
	ErrFrameNotFound      = errors.New("stack frame not found")
)
