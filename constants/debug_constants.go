package constants

// StoppedReasonType 程序停止类型，透传给前端的stopped事件reason字段
type StoppedReasonType string

const (
	BreakpointStopped StoppedReasonType = "breakpoint"
	StepStopped       StoppedReasonType = "step"
	SignalStopped     StoppedReasonType = "signal"
	GenericStopped    StoppedReasonType = "generic"
)

// gdb/mi *stopped通知中reason字段的取值
const (
	MIReasonBreakpointHit    = "breakpoint-hit"
	MIReasonEndSteppingRange = "end-stepping-range"
	MIReasonFunctionFinished = "function-finished"
	MIReasonSignalReceived   = "signal-received"
	MIReasonExited           = "exited"
	MIReasonExitedNormally   = "exited-normally"
)

// ScopeName 作用域名称
type ScopeName string

// Local: 当前栈帧中的局部变量和参数。
// Global: 整个程序的全局变量。
// Static: 静态存储区域的变量，按当前栈帧所在文件筛选。
const (
	ScopeLocal  ScopeName = "Local"
	ScopeGlobal ScopeName = "Global"
	ScopeStatic ScopeName = "Static"
)
