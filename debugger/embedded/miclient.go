package embedded

import (
	"time"

	"github.com/fansqz/embedded-debugger/debugger/embedded/gdb"
)

// MIClient gdb/mi命令通道
// *gdb.Gdb是运行时实现，测试中用fake替代
type MIClient interface {
	Send(operation string, args ...string) (map[string]interface{}, error)
	SendWithTimeout(timeout time.Duration, operation string, args ...string) (map[string]interface{}, error)
	SendAsync(callback gdb.AsyncCallback, operation string, args ...string) error
	Interrupt() error
	Exit() error
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
}
