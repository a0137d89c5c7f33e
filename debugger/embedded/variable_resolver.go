package embedded

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/google/go-dap"
)

// DepthNone depth哨兵，表示不是真实栈帧（全局变量解析）
const DepthNone = -1

// trackedKey tracked变量缓存的key，栈帧身份+深度+展示名
type trackedKey struct {
	frameID  int
	threadID int
	depth    int
	name     string
}

// TrackedVariable 已注册到gdb的tracked变量
type TrackedVariable struct {
	// BackendName gdb侧的变量名
	BackendName string
	Value       string
	Type        string
	ChildCount  int
}

// VariableResolver 命名tracked变量的create-or-update解析
// 同一个栈帧身份下同名变量只做一次var-create，之后走var-update增量刷新
type VariableResolver struct {
	client MIClient
	out    *GDBOutputUtil
	refs   *ReferenceUtil

	mutex sync.Mutex
	cache map[trackedKey]*TrackedVariable
	// pseudoFrameHandle 每次stackTrace请求分配的哨兵栈帧引用
	pseudoFrameHandle int
}

func NewVariableResolver(client MIClient, out *GDBOutputUtil, refs *ReferenceUtil) *VariableResolver {
	return &VariableResolver{
		client: client,
		out:    out,
		refs:   refs,
		cache:  map[trackedKey]*TrackedVariable{},
	}
}

// SetPseudoFrameHandle 更新哨兵栈帧引用，子变量引用挂在它下面
func (v *VariableResolver) SetPseudoFrameHandle(handle int) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.pseudoFrameHandle = handle
}

// Reset 清空缓存，重新启动调试时调用
func (v *VariableResolver) Reset() {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.cache = map[trackedKey]*TrackedVariable{}
}

// Resolve 解析一个命名变量
// 缓存命中时对后端变量做var-update，更新报告在作用域内且名称一致才覆盖缓存值，
// 越界或改名时保留旧值；未命中时var-create并入缓存
func (v *VariableResolver) Resolve(frame FrameRef, displayName string, expression string, depth int) (dap.Variable, error) {
	key := trackedKey{frameID: frame.FrameID, threadID: frame.ThreadID, depth: depth, name: displayName}
	v.mutex.Lock()
	defer v.mutex.Unlock()

	tracked, ok := v.cache[key]
	if ok {
		m, err := v.client.SendWithTimeout(OptionTimeout, "var-update", "--all-values", tracked.BackendName)
		if err != nil {
			return dap.Variable{}, err
		}
		if update, found := v.out.ParseVarUpdateOutput(m, tracked.BackendName); found {
			if update.InScope && update.Name == tracked.BackendName {
				tracked.Value = update.Value
			}
		}
	} else {
		backendName := sanitizeVarName(displayName)
		m, err := v.client.SendWithTimeout(OptionTimeout, "var-create", backendName, "@", quoteArgument(expression))
		if err != nil {
			return dap.Variable{}, err
		}
		object, success := v.out.ParseVarCreateOutput(m)
		if !success {
			return dap.Variable{}, fmt.Errorf("create tracked variable %s fail", displayName)
		}
		name := object.Name
		if name == "" {
			name = backendName
		}
		tracked = &TrackedVariable{
			BackendName: name,
			Value:       object.Value,
			Type:        object.Type,
			ChildCount:  object.NumChild,
		}
		v.cache[key] = tracked
	}

	value := tracked.Value
	if value == "" {
		value = "<unknown>"
	}
	reference := 0
	if tracked.ChildCount > 0 {
		reference = v.refs.CreateObjectReference(ObjectRef{
			FrameHandle: v.pseudoFrameHandle,
			VarName:     tracked.BackendName,
		})
	}
	return dap.Variable{
		Name:               displayName,
		Value:              value,
		Type:               tracked.Type,
		VariablesReference: reference,
	}, nil
}

// Children 读取可展开变量的子元素列表
func (v *VariableResolver) Children(object ObjectRef) ([]dap.Variable, error) {
	m, err := v.client.SendWithTimeout(OptionTimeout, "var-list-children", "--all-values", object.VarName)
	if err != nil {
		return nil, err
	}
	children := v.out.ParseVarChildrenOutput(m)
	answer := make([]dap.Variable, 0, len(children))
	for _, child := range children {
		value := child.Value
		if value == "" {
			value = "<unknown>"
		}
		reference := 0
		if child.NumChild > 0 {
			reference = v.refs.CreateObjectReference(ObjectRef{
				FrameHandle: object.FrameHandle,
				VarName:     child.Name,
			})
		}
		answer = append(answer, dap.Variable{
			Name:               child.DisplayName,
			Value:              value,
			Type:               child.Type,
			VariablesReference: reference,
		})
	}
	return answer, nil
}

var varNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitizeVarName 展示名转成gdb接受的变量名，文件名前缀中的点和斜杠都归一成下划线
func sanitizeVarName(name string) string {
	return varNameRegexp.ReplaceAllString(name, "_")
}

// quoteArgument mi命令参数加引号，避免空格截断
func quoteArgument(arg string) string {
	escaped := ""
	for _, c := range arg {
		if c == '"' || c == '\\' {
			escaped += "\\"
		}
		escaped += string(c)
	}
	return "\"" + escaped + "\""
}
