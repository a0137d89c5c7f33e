package embedded

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	. "github.com/fansqz/embedded-debugger/debugger"
	"github.com/fansqz/embedded-debugger/utils"
	"github.com/google/go-dap"
)

// LogPointTable 后端断点编号到日志消息的映射
// 每次对账开始时整表清空，日志点只在当前对账批次内有效
type LogPointTable struct {
	mutex    sync.RWMutex
	messages map[string]string
}

func NewLogPointTable() *LogPointTable {
	return &LogPointTable{messages: map[string]string{}}
}

func (l *LogPointTable) Clear() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.messages = map[string]string{}
}

func (l *LogPointTable) Register(number string, message string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.messages[number] = message
}

func (l *LogPointTable) Lookup(number string) (string, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	message, ok := l.messages[number]
	return message, ok
}

// execController 对账过程需要的执行控制，由session实现
type execController interface {
	IsRunning() bool
	// InterruptAndWait 中断目标并等待真正停下
	InterruptAndWait(ctx context.Context) error
	// Resume 恢复执行，不等待完成
	Resume()
}

// BreakpointReconciler 断点对账
// 把前端声明的断点集合与gdb中已安装的集合做diff，按文件处理
type BreakpointReconciler struct {
	client    MIClient
	out       *GDBOutputUtil
	exec      execController
	logPoints *LogPointTable
	callback  NotificationCallback
}

func NewBreakpointReconciler(client MIClient, out *GDBOutputUtil, exec execController,
	logPoints *LogPointTable, callback NotificationCallback) *BreakpointReconciler {
	return &BreakpointReconciler{
		client:    client,
		out:       out,
		exec:      exec,
		logPoints: logPoints,
		callback:  callback,
	}
}

// Reconcile 对一个源文件做断点对账
// 目标运行中会先中断再操作，结束后补一次continue；中途任何命令失败都会
// 中止剩余步骤，但欠下的continue仍然会补上，保证目标不会一直停着
func (b *BreakpointReconciler) Reconcile(ctx context.Context, source dap.Source, desired []dap.SourceBreakpoint) (result []dap.Breakpoint, err error) {
	resumeOwed := false
	defer func() {
		if resumeOwed {
			b.exec.Resume()
		}
	}()
	if b.exec.IsRunning() {
		if err = b.exec.InterruptAndWait(ctx); err != nil {
			return nil, err
		}
		resumeOwed = true
	}

	b.logPoints.Clear()

	m, err := b.client.SendWithTimeout(OptionTimeout, "break-list")
	if err != nil {
		return nil, err
	}
	var installed []InstalledBreakpoint
	for _, bp := range b.out.ParseBreakListOutput(m) {
		if matchesFile(bp, source.Path) {
			installed = append(installed, bp)
		}
	}

	// 请求中各行携带的日志消息
	logMessages := map[int]string{}
	desiredLines := make([]int, 0, len(desired))
	for _, d := range desired {
		desiredLines = append(desiredLines, d.Line)
		if d.LogMessage != "" {
			logMessages[d.Line] = d.LogMessage
		}
	}
	lineSet := utils.List2set(desiredLines)

	// 已安装断点：行号和条件都匹配的原样保留，其余删除
	remaining := append([]dap.SourceBreakpoint{}, desired...)
	result = make([]dap.Breakpoint, 0, len(desired))
	toDelete := make([]string, 0, len(installed))
	for _, inst := range installed {
		if !lineSet.Contains(inst.Line) {
			toDelete = append(toDelete, inst.Number)
			continue
		}
		consumed := false
		for i, d := range remaining {
			if d.Line == inst.Line && conditionEqual(d.Condition, inst.Condition) {
				result = append(result, b.toDAPBreakpoint(inst, source))
				if message, ok := logMessages[inst.Line]; ok {
					b.logPoints.Register(inst.Number, message)
				}
				remaining = append(remaining[:i], remaining[i+1:]...)
				consumed = true
				break
			}
		}
		// 行号相同但条件变了，删除重装
		if !consumed {
			toDelete = append(toDelete, inst.Number)
		}
	}

	// 剩余的期望断点逐个安装
	for _, d := range remaining {
		temporary, ignoreCount, parseErr := ParseHitCondition(d.HitCondition)
		if parseErr != nil {
			b.emitOutput(fmt.Sprintf("breakpoint at %s:%d skipped: %v\n", source.Path, d.Line, parseErr))
			continue
		}
		args := make([]string, 0, 6)
		if d.Condition != "" {
			args = append(args, "-c", quoteArgument(d.Condition))
		}
		if temporary {
			args = append(args, "-t")
		}
		if ignoreCount > 0 {
			args = append(args, "-i", strconv.Itoa(ignoreCount))
		}
		args = append(args, fmt.Sprintf("%s:%d", source.Path, d.Line))
		m, err = b.client.SendWithTimeout(OptionTimeout, "break-insert", args...)
		if err != nil {
			return result, err
		}
		success, inst := b.out.ParseBreakInsertOutput(m)
		if !success {
			return result, fmt.Errorf("insert breakpoint at %s:%d fail", source.Path, d.Line)
		}
		result = append(result, b.toDAPBreakpoint(inst, source))
		if message, ok := logMessages[d.Line]; ok {
			b.logPoints.Register(inst.Number, message)
		}
	}

	// 批量删除
	if len(toDelete) > 0 {
		if _, err = b.client.SendWithTimeout(OptionTimeout, "break-delete", toDelete...); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (b *BreakpointReconciler) toDAPBreakpoint(inst InstalledBreakpoint, source dap.Source) dap.Breakpoint {
	id, _ := strconv.Atoi(inst.Number)
	return dap.Breakpoint{
		Id:       id,
		Verified: true,
		Line:     inst.Line,
		Source:   &dap.Source{Name: source.Name, Path: source.Path},
	}
}

func (b *BreakpointReconciler) emitOutput(output string) {
	if b.callback == nil {
		return
	}
	b.callback(&dap.OutputEvent{
		Event: *NewEvent(0, "output"),
		Body:  dap.OutputEventBody{Category: "console", Output: output},
	})
}

// matchesFile 安装断点是否属于path文件，gdb可能返回相对路径或绝对路径
func matchesFile(bp InstalledBreakpoint, path string) bool {
	if bp.Fullname == path || bp.File == path {
		return true
	}
	base := filepath.Base(path)
	return filepath.Base(bp.Fullname) == base || filepath.Base(bp.File) == base
}

// conditionEqual 断点条件比较，未设置和空串视为相等
func conditionEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

var hitCondRegexp = regexp.MustCompile(`^\s*(>?)\s*(\d+)\s*$`)

// ParseHitCondition 解析断点的hit次数表达式
// 裸数字安装临时断点（命中后自动移除），">N"安装带忽略次数的持久断点，
// 其余形式判定为不可解析
func ParseHitCondition(hitCondition string) (temporary bool, ignoreCount int, err error) {
	if strings.TrimSpace(hitCondition) == "" {
		return false, 0, nil
	}
	match := hitCondRegexp.FindStringSubmatch(hitCondition)
	if match == nil {
		return false, 0, fmt.Errorf("unsupported hit condition %q", hitCondition)
	}
	count, _ := strconv.Atoi(match[2])
	if match[1] == ">" {
		return false, count, nil
	}
	return true, 0, nil
}
