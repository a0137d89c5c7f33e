package debugger

import "github.com/google/go-dap"

// Symbol 符号表中的一个变量符号
type Symbol struct {
	Name string `json:"name"`
	// File 符号所在文件，静态变量按文件归属
	File string `json:"file"`
}

// SymbolTable 程序的全局/静态变量符号表
type SymbolTable interface {
	// GetGlobalVariables 获取全局变量符号列表
	GetGlobalVariables() ([]Symbol, error)
	// GetStaticVariables 获取file文件内静态变量符号列表
	GetStaticVariables(file string) ([]Symbol, error)
}

// NewEvent 构造dap事件
func NewEvent(seq int, event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  seq,
			Type: "event",
		},
		Event: event,
	}
}
