package debugger

import (
	"context"

	"github.com/fansqz/embedded-debugger/protocol"
	"github.com/google/go-dap"
)

// NotificationCallback 事件回调，session产生的dap事件通过它推给前端
type NotificationCallback func(event dap.EventMessage)

// Debugger
// 一次嵌入式调试会话
// 需要保证并发安全
type Debugger interface {
	// Start 启动gdb server和gdb，完成target-select，launch模式下还会下载镜像并复位
	Start(ctx context.Context, option *StartOption) error
	// ConfigurationDone 前端断点等配置下发完成，launch模式下开始执行
	ConfigurationDone(ctx context.Context) error
	// SetBreakpoints 对一个源文件做断点对账，返回安装成功的断点
	SetBreakpoints(ctx context.Context, source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error)
	// Pause 请求目标暂停
	Pause(ctx context.Context) error
	// Continue 继续执行
	Continue(ctx context.Context) error
	// StepOver 下一步，不会进入函数内部
	StepOver(ctx context.Context) error
	// StepIn 下一步，会进入函数内部
	StepIn(ctx context.Context) error
	// StepOut 单步退出
	StepOut(ctx context.Context) error
	// GetStackTrace 获取栈帧
	GetStackTrace(ctx context.Context) ([]dap.StackFrame, error)
	// GetScopes 获取某个栈帧的作用域列表，固定为Local/Global/Static三个
	GetScopes(ctx context.Context, frameHandle int) ([]dap.Scope, error)
	// GetVariables 根据引用读取变量列表
	GetVariables(ctx context.Context, reference int) ([]dap.Variable, error)
	// GetThreads 获取线程列表
	GetThreads(ctx context.Context) ([]dap.Thread, error)
	// Evaluate 表达式求值，console模式下原样透传给gdb
	Evaluate(ctx context.Context, expression string, evalContext string) (string, error)
	// Disconnect 断开调试，按顺序尽力完成所有清理步骤
	Disconnect(ctx context.Context) error
}

// StartOption 启动调试的参数
type StartOption struct {
	Arguments protocol.LaunchArguments
	// Attach true表示attach到已运行的目标，不做下载和复位
	Attach bool
	// Callback 事件回调
	Callback NotificationCallback
}
