package embedded

import (
	"strconv"
)

// GDBOutputUtil 处理gdb/mi输出的工具
type GDBOutputUtil struct {
}

func NewGDBOutputUtil() *GDBOutputUtil {
	return &GDBOutputUtil{}
}

// InstalledBreakpoint gdb中已安装的断点，来自break-list/break-insert输出
type InstalledBreakpoint struct {
	Number      string
	File        string
	Fullname    string
	Line        int
	Condition   string
	Temporary   bool
	IgnoreCount int
}

// VarObject var-create输出的tracked变量
type VarObject struct {
	Name     string
	Value    string
	Type     string
	NumChild int
}

// VarUpdate var-update输出中一个变量的变化
type VarUpdate struct {
	Name    string
	Value   string
	InScope bool
}

// ChildVariable var-list-children输出的一个子元素
type ChildVariable struct {
	// Name 子元素的tracked变量名，形如parent.child
	Name string
	// DisplayName 展示名，即exp字段
	DisplayName string
	Value       string
	Type        string
	NumChild    int
}

// StackFrameInfo stack-list-frames输出的一个栈帧
type StackFrameInfo struct {
	Level    int
	Func     string
	File     string
	Fullname string
	Line     int
}

// ThreadInfo thread-info输出的一个线程
type ThreadInfo struct {
	ID   int
	Name string
}

// ParseBreakListOutput 解析断点列表输出
// class->done
//
//	payload->{
//	  BreakpointTable->{
//	    body->[
//	      {bkpt->{number->"1" disp->"keep" cond->"x>3" ignore->"2"
//	              file->"main.c" fullname->"/work/main.c" line->"10"}}
//	    ]
//	  }
//	}
func (g *GDBOutputUtil) ParseBreakListOutput(m map[string]interface{}) []InstalledBreakpoint {
	answer := make([]InstalledBreakpoint, 0, 5)
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return answer
	}
	table := g.GetInterfaceFromMap(payload, "BreakpointTable")
	for _, entry := range g.GetListFromMap(table, "body") {
		bkpt := g.GetInterfaceFromMap(entry, "bkpt")
		if bkpt == nil {
			// 部分gdb版本body直接是tuple列表
			bkpt = entry
		}
		answer = append(answer, g.parseBreakpointTuple(bkpt))
	}
	return answer
}

// ParseBreakInsertOutput 解析添加断点输出
// class->done payload->{bkpt->{number->"2" line->"20" ...}}
func (g *GDBOutputUtil) ParseBreakInsertOutput(m map[string]interface{}) (bool, InstalledBreakpoint) {
	if g.GetStringFromMap(m, "class") != "done" {
		return false, InstalledBreakpoint{}
	}
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return false, InstalledBreakpoint{}
	}
	bkpt := g.GetInterfaceFromMap(payload, "bkpt")
	if bkpt == nil {
		return false, InstalledBreakpoint{}
	}
	return true, g.parseBreakpointTuple(bkpt)
}

func (g *GDBOutputUtil) parseBreakpointTuple(bkpt interface{}) InstalledBreakpoint {
	return InstalledBreakpoint{
		Number:      g.GetStringFromMap(bkpt, "number"),
		File:        g.GetStringFromMap(bkpt, "file"),
		Fullname:    g.GetStringFromMap(bkpt, "fullname"),
		Line:        g.GetIntFromMap(bkpt, "line"),
		Condition:   g.GetStringFromMap(bkpt, "cond"),
		Temporary:   g.GetStringFromMap(bkpt, "disp") == "del",
		IgnoreCount: g.GetIntFromMap(bkpt, "ignore"),
	}
}

// ParseVarCreateOutput 解析var-create输出
// class->done payload->{name->"g_count" numchild->"0" value->"3" type->"int"}
func (g *GDBOutputUtil) ParseVarCreateOutput(m map[string]interface{}) (*VarObject, bool) {
	if g.GetStringFromMap(m, "class") != "done" {
		return nil, false
	}
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil, false
	}
	return &VarObject{
		Name:     g.GetStringFromMap(payload, "name"),
		Value:    g.GetStringFromMap(payload, "value"),
		Type:     g.GetStringFromMap(payload, "type"),
		NumChild: g.GetIntFromMap(payload, "numchild"),
	}, true
}

// ParseVarUpdateOutput 解析var-update输出中名为name的变量变化
// class->done payload->{changelist->[{name->"g_count" value->"4" in_scope->"true"}]}
// changelist为空说明变量无变化，返回false
func (g *GDBOutputUtil) ParseVarUpdateOutput(m map[string]interface{}, name string) (*VarUpdate, bool) {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil, false
	}
	for _, change := range g.GetListFromMap(payload, "changelist") {
		if g.GetStringFromMap(change, "name") != name {
			continue
		}
		return &VarUpdate{
			Name:    g.GetStringFromMap(change, "name"),
			Value:   g.GetStringFromMap(change, "value"),
			InScope: g.GetStringFromMap(change, "in_scope") == "true",
		}, true
	}
	return nil, false
}

// ParseVarChildrenOutput 解析var-list-children输出
// class->done payload->{numchild->"2" children->[{child->{name->"s.a" exp->"a" ...}}]}
func (g *GDBOutputUtil) ParseVarChildrenOutput(m map[string]interface{}) []ChildVariable {
	answer := make([]ChildVariable, 0, 5)
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return answer
	}
	for _, entry := range g.GetListFromMap(payload, "children") {
		child := g.GetInterfaceFromMap(entry, "child")
		if child == nil {
			child = entry
		}
		answer = append(answer, ChildVariable{
			Name:        g.GetStringFromMap(child, "name"),
			DisplayName: g.GetStringFromMap(child, "exp"),
			Value:       g.GetStringFromMap(child, "value"),
			Type:        g.GetStringFromMap(child, "type"),
			NumChild:    g.GetIntFromMap(child, "numchild"),
		})
	}
	return answer
}

// ParseStackTraceOutput 解析栈帧输出
// class->done
//
//	payload->{
//	  stack->[
//	    {frame->{level->"0" func->"main" fullname->"/work/main.c" line->"44"}}
//	  ]
//	}
func (g *GDBOutputUtil) ParseStackTraceOutput(m map[string]interface{}) []StackFrameInfo {
	answer := make([]StackFrameInfo, 0, 5)
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return answer
	}
	for _, s := range g.GetListFromMap(payload, "stack") {
		frame := g.GetInterfaceFromMap(s, "frame")
		if frame == nil {
			frame = s
		}
		level, _ := strconv.Atoi(g.GetStringFromMap(frame, "level"))
		answer = append(answer, StackFrameInfo{
			Level:    level,
			Func:     g.GetStringFromMap(frame, "func"),
			File:     g.GetStringFromMap(frame, "file"),
			Fullname: g.GetStringFromMap(frame, "fullname"),
			Line:     g.GetIntFromMap(frame, "line"),
		})
	}
	return answer
}

// ParseFrameInfoOutput 解析stack-info-frame输出，返回当前栈帧所在文件
// class->done payload->{frame->{level->"1" fullname->"/work/main.c" line->"10"}}
func (g *GDBOutputUtil) ParseFrameInfoOutput(m map[string]interface{}) (string, bool) {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return "", false
	}
	frame := g.GetInterfaceFromMap(payload, "frame")
	if frame == nil {
		return "", false
	}
	fullname := g.GetStringFromMap(frame, "fullname")
	if fullname == "" {
		fullname = g.GetStringFromMap(frame, "file")
	}
	return fullname, fullname != ""
}

// ParseStackDepthOutput 解析stack-info-depth输出
// class->done payload->{depth->"12"}
func (g *GDBOutputUtil) ParseStackDepthOutput(m map[string]interface{}) int {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return 0
	}
	return g.GetIntFromMap(payload, "depth")
}

// ParseThreadInfoOutput 解析thread-info输出
// class->done payload->{threads->[{id->"1" target-id->"Thread 1"}] current-thread-id->"1"}
func (g *GDBOutputUtil) ParseThreadInfoOutput(m map[string]interface{}) ([]ThreadInfo, int) {
	answer := make([]ThreadInfo, 0, 2)
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return answer, 0
	}
	for _, t := range g.GetListFromMap(payload, "threads") {
		id, _ := strconv.Atoi(g.GetStringFromMap(t, "id"))
		name := g.GetStringFromMap(t, "name")
		if name == "" {
			name = g.GetStringFromMap(t, "target-id")
		}
		answer = append(answer, ThreadInfo{ID: id, Name: name})
	}
	current, _ := strconv.Atoi(g.GetStringFromMap(payload, "current-thread-id"))
	return answer, current
}

// ParseDownloadStatusOutput 解析target-download过程中的+download状态记录，返回进度百分比
func (g *GDBOutputUtil) ParseDownloadStatusOutput(m map[string]interface{}) (int, bool) {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return 0, false
	}
	sent := g.GetIntFromMap(payload, "total-sent")
	size := g.GetIntFromMap(payload, "total-size")
	if size <= 0 {
		return 0, false
	}
	return sent * 100 / size, true
}

// GetPayloadFromMap 读取payload字段
func (g *GDBOutputUtil) GetPayloadFromMap(m map[string]interface{}) (interface{}, bool) {
	payload, ok := m["payload"]
	return payload, ok
}

// GetInterfaceFromMap 从map类型的value中读取key字段
func (g *GDBOutputUtil) GetInterfaceFromMap(value interface{}, key string) interface{} {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return m[key]
}

// GetStringFromMap 从map类型的value中读取key字段的字符串值
func (g *GDBOutputUtil) GetStringFromMap(value interface{}, key string) string {
	s, _ := g.GetInterfaceFromMap(value, key).(string)
	return s
}

// GetIntFromMap 从map类型的value中读取key字段的数值
func (g *GDBOutputUtil) GetIntFromMap(value interface{}, key string) int {
	i, _ := strconv.Atoi(g.GetStringFromMap(value, key))
	return i
}

// GetListFromMap 从map类型的value中读取key字段的列表值
func (g *GDBOutputUtil) GetListFromMap(value interface{}, key string) []interface{} {
	list, _ := g.GetInterfaceFromMap(value, key).([]interface{})
	return list
}
