package embedded

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fansqz/embedded-debugger/constants"
	. "github.com/fansqz/embedded-debugger/debugger"
	"github.com/fansqz/embedded-debugger/debugger/embedded/gdb"
	e "github.com/fansqz/embedded-debugger/error"
	"github.com/fansqz/embedded-debugger/gdbserver"
	"github.com/fansqz/embedded-debugger/protocol"
	"github.com/fansqz/embedded-debugger/symbols"
	"github.com/fansqz/embedded-debugger/utils"
	"github.com/fansqz/embedded-debugger/utils/gosync"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

const (
	OptionTimeout = time.Second * 10
	// MaxStackDepth 静态变量解析时stack-info-depth的查询上限
	MaxStackDepth = 100
)

// EmbeddedDebugger 嵌入式调试会话
// 负责dap请求到gdb/mi命令的转换，并管理gdb server进程
type EmbeddedDebugger struct {
	startOption *StartOption

	// GDB mi命令通道
	GDB MIClient

	// 引用工具
	ReferenceUtil *ReferenceUtil
	// tracked变量解析
	Resolver *VariableResolver
	// 断点对账
	Reconciler *BreakpointReconciler
	// 停止事件分类
	Classifier *StopClassifier
	// gdb输出工具
	OutputUtil *GDBOutputUtil

	// 调试的状态管理
	StatusManager *utils.StatusManager

	// gdb server进程管理
	server *gdbserver.Supervisor

	symbolTable SymbolTable
	logPoints   *LogPointTable
	callback    NotificationCallback

	// newClient mi通道工厂，测试中注入fake
	newClient func(cmd []string, onNotification gdb.NotificationCallback) (MIClient, error)

	// console流捕获，用于evaluate透传
	consoleMutex     sync.Mutex
	consoleCapturing bool
	consoleBuf       strings.Builder

	// 最近一次停止的线程
	threadMutex     sync.RWMutex
	currentThreadID int

	// 最近一次stackTrace分配的哨兵栈帧引用
	pseudoFrameHandle int
}

func NewEmbeddedDebugger() *EmbeddedDebugger {
	d := &EmbeddedDebugger{
		StatusManager: utils.NewStatusManager(),
		ReferenceUtil: NewReferenceUtil(),
		OutputUtil:    NewGDBOutputUtil(),
		logPoints:     NewLogPointTable(),
	}
	return d
}

// Start 启动调试
// 先拉起gdb server等待就绪，再启动gdb完成target-select，launch模式下
// 下载镜像并复位
func (d *EmbeddedDebugger) Start(ctx context.Context, option *StartOption) error {
	d.startOption = option
	d.callback = option.Callback
	args := option.Arguments

	d.symbolTable = symbols.NewSourceSymbolTable(args.SourceFiles)

	// 启动gdb server
	controller := buildController(args)
	d.server = gdbserver.NewSupervisor(controller, gdbserver.Events{
		OnOutput: d.onServerOutput,
		OnError:  d.onServerError,
		OnExit:   d.onServerExit,
	})
	d.server.Dir = args.Cwd
	if err := d.server.Spawn(ctx); err != nil {
		logrus.Errorf("[Start] spawn gdb server fail, err = %v", err)
		return err
	}
	port := controller.ResolvePort(args.Port)

	// 启动失败不能留下孤儿进程，gdb和server都要收掉
	started := false
	defer func() {
		if started {
			return
		}
		if d.GDB != nil {
			_ = d.GDB.Exit()
		}
		d.server.Kill()
	}()

	// 启动gdb
	gdbPath := args.GDBPath
	if gdbPath == "" {
		gdbPath = "gdb"
	}
	newClient := d.newClient
	if newClient == nil {
		newClient = func(cmd []string, onNotification gdb.NotificationCallback) (MIClient, error) {
			return gdb.NewCmd(cmd, onNotification)
		}
	}
	gd, err := newClient([]string{gdbPath}, d.gdbNotificationCallback)
	if err != nil {
		logrus.Errorf("[Start] start gdb fail, err = %v", err)
		return err
	}
	d.GDB = gd
	d.Resolver = NewVariableResolver(d.GDB, d.OutputUtil, d.ReferenceUtil)
	d.Reconciler = NewBreakpointReconciler(d.GDB, d.OutputUtil, d, d.logPoints, d.callback)
	d.Classifier = NewStopClassifier(d.GDB, d.OutputUtil, d.logPoints, d.callback)

	// 加载符号
	if args.Executable != "" {
		m, err := d.GDB.SendWithTimeout(OptionTimeout, "file-exec-and-symbols", quoteArgument(args.Executable))
		if err != nil {
			return err
		}
		if result := d.OutputUtil.GetStringFromMap(m, "class"); result != "done" {
			return fmt.Errorf("load executable %s fail", args.Executable)
		}
	}

	// 连接目标
	m, err := d.GDB.SendWithTimeout(OptionTimeout, "target-select", "extended-remote",
		fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return err
	}
	if result := d.OutputUtil.GetStringFromMap(m, "class"); result != "connected" && result != "done" {
		return fmt.Errorf("connect gdb server on port %d fail", port)
	}

	for _, command := range controller.InitCommands() {
		if _, err = d.GDB.SendWithTimeout(OptionTimeout, "interpreter-exec", "console", quoteArgument(command)); err != nil {
			logrus.Warnf("[Start] init command %q fail, err = %v", command, err)
		}
	}

	if !option.Attach {
		// 下载镜像并复位
		if _, err = d.GDB.SendWithTimeout(time.Minute, "target-download"); err != nil {
			return err
		}
		if _, err = d.GDB.SendWithTimeout(OptionTimeout, "interpreter-exec", "console", quoteArgument("monitor reset halt")); err != nil {
			logrus.Warnf("[Start] reset halt fail, err = %v", err)
		}
	}

	// 读取目标的终端输出
	gosync.Go(ctx, d.processTargetOutput)

	d.StatusManager.Set(utils.Stopped)
	started = true
	return nil
}

// ConfigurationDone 前端配置下发完成，launch模式下开始执行
func (d *EmbeddedDebugger) ConfigurationDone(ctx context.Context) error {
	if d.GDB == nil {
		return e.ErrDebuggerNotStarted
	}
	if d.startOption.Attach {
		return nil
	}
	return d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-continue")
}

// SetBreakpoints 对一个源文件做断点对账
func (d *EmbeddedDebugger) SetBreakpoints(ctx context.Context, source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	if d.Reconciler == nil {
		return nil, e.ErrDebuggerNotStarted
	}
	return d.Reconciler.Reconcile(ctx, source, breakpoints)
}

// Pause 请求目标暂停
// 先挂pause future再发中断，真正停下由停止分类器通过future回报
func (d *EmbeddedDebugger) Pause(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Running) {
		return e.ErrTargetNotRunning
	}
	d.Classifier.PreparePause()
	return d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-interrupt")
}

func (d *EmbeddedDebugger) Continue(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Stopped) {
		return e.ErrTargetRunning
	}
	return d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-continue")
}

func (d *EmbeddedDebugger) StepOver(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Stopped) {
		return e.ErrTargetRunning
	}
	return d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-next")
}

func (d *EmbeddedDebugger) StepIn(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Stopped) {
		return e.ErrTargetRunning
	}
	return d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-step")
}

func (d *EmbeddedDebugger) StepOut(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Stopped) {
		return e.ErrTargetRunning
	}
	return d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-finish")
}

// GetStackTrace 获取栈帧
// 每个栈帧分配一个引用作为dap的frameId，同时分配一个哨兵栈帧引用
// 供Global/Static作用域解析使用
func (d *EmbeddedDebugger) GetStackTrace(ctx context.Context) ([]dap.StackFrame, error) {
	if !d.StatusManager.Is(utils.Stopped) {
		return nil, e.ErrTargetRunning
	}
	threadID := d.getCurrentThreadID()
	m, err := d.GDB.SendWithTimeout(OptionTimeout, "stack-list-frames")
	if err != nil {
		logrus.Errorf("[GetStackTrace] fail, err = %v", err)
		return nil, err
	}
	frames := d.OutputUtil.ParseStackTraceOutput(m)
	answer := make([]dap.StackFrame, 0, len(frames))
	for _, frame := range frames {
		handle := d.ReferenceUtil.CreateFrameReference(FrameRef{ThreadID: threadID, FrameID: frame.Level})
		answer = append(answer, dap.StackFrame{
			Id:   handle,
			Name: frame.Func,
			Line: frame.Line,
			Source: &dap.Source{
				Name: filepath.Base(frame.Fullname),
				Path: frame.Fullname,
			},
		})
	}
	// Global/Static作用域没有真实栈帧，用哨兵栈帧做解析身份
	d.pseudoFrameHandle = d.ReferenceUtil.CreateFrameReference(FrameRef{ThreadID: -1, FrameID: -1})
	d.Resolver.SetPseudoFrameHandle(d.pseudoFrameHandle)
	return answer, nil
}

// GetScopes 固定返回Local/Global/Static三个作用域
func (d *EmbeddedDebugger) GetScopes(ctx context.Context, frameHandle int) ([]dap.Scope, error) {
	answer := []dap.Scope{
		{Name: string(constants.ScopeLocal), VariablesReference: frameHandle},
		{Name: string(constants.ScopeGlobal), VariablesReference: GlobalHandle},
	}
	if static, ok := d.ReferenceUtil.StaticReference(frameHandle); ok {
		answer = append(answer, dap.Scope{Name: string(constants.ScopeStatic), VariablesReference: static})
	}
	return answer, nil
}

// GetVariables 根据引用的地址空间分发
func (d *EmbeddedDebugger) GetVariables(ctx context.Context, reference int) ([]dap.Variable, error) {
	if !d.StatusManager.Is(utils.Stopped) {
		return nil, e.ErrTargetRunning
	}
	if d.ReferenceUtil.IsGlobalReference(reference) {
		return d.getGlobalVariables()
	}
	if d.ReferenceUtil.IsStaticReference(reference) {
		return d.getStaticVariables(d.ReferenceUtil.FrameHandleForStatic(reference))
	}
	if frame, ok := d.ReferenceUtil.ResolveFrame(reference); ok {
		return d.getLocalVariables(frame)
	}
	if object, ok := d.ReferenceUtil.ResolveObject(reference); ok {
		return d.Resolver.Children(object)
	}
	return nil, e.ErrReferenceNotFound
}

// getGlobalVariables 全局变量列表
// 没有真实栈帧，深度用哨兵-1，变量名加global_var_前缀隔离缓存key
func (d *EmbeddedDebugger) getGlobalVariables() ([]dap.Variable, error) {
	globals, err := d.symbolTable.GetGlobalVariables()
	if err != nil {
		return nil, err
	}
	answer := make([]dap.Variable, 0, len(globals))
	for _, symbol := range globals {
		variable, err := d.Resolver.Resolve(FrameRef{ThreadID: -1, FrameID: -1},
			"global_var_"+symbol.Name, symbol.Name, DepthNone)
		if err != nil {
			logrus.Warnf("[getGlobalVariables] resolve %s fail, err = %v", symbol.Name, err)
			continue
		}
		variable.Name = symbol.Name
		answer = append(answer, variable)
	}
	return answer, nil
}

// getStaticVariables 静态变量列表
// 按当前栈帧所在文件筛选，深度取真实栈深，变量名加文件前缀隔离缓存key
func (d *EmbeddedDebugger) getStaticVariables(frameHandle int) ([]dap.Variable, error) {
	frame, ok := d.ReferenceUtil.ResolveFrame(frameHandle)
	if !ok {
		return nil, e.ErrFrameNotFound
	}
	if err := d.selectFrame(frame); err != nil {
		return nil, err
	}
	m, err := d.GDB.SendWithTimeout(OptionTimeout, "stack-info-frame")
	if err != nil {
		return nil, err
	}
	file, ok := d.OutputUtil.ParseFrameInfoOutput(m)
	if !ok {
		return nil, fmt.Errorf("current frame has no source file")
	}
	if m, err = d.GDB.SendWithTimeout(OptionTimeout, "stack-info-depth", strconv.Itoa(MaxStackDepth)); err != nil {
		return nil, err
	}
	depth := d.OutputUtil.ParseStackDepthOutput(m)

	statics, err := d.symbolTable.GetStaticVariables(file)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(file)
	answer := make([]dap.Variable, 0, len(statics))
	for _, symbol := range statics {
		variable, err := d.Resolver.Resolve(frame, base+"_static_var_"+symbol.Name, symbol.Name, depth)
		if err != nil {
			logrus.Warnf("[getStaticVariables] resolve %s fail, err = %v", symbol.Name, err)
			continue
		}
		variable.Name = symbol.Name
		answer = append(answer, variable)
	}
	return answer, nil
}

// getLocalVariables 局部变量列表
func (d *EmbeddedDebugger) getLocalVariables(frame FrameRef) ([]dap.Variable, error) {
	if err := d.selectFrame(frame); err != nil {
		return nil, err
	}
	m, err := d.GDB.SendWithTimeout(OptionTimeout, "stack-list-variables",
		"--thread", strconv.Itoa(frame.ThreadID), "--frame", strconv.Itoa(frame.FrameID), "--simple-values")
	if err != nil {
		logrus.Errorf("[getLocalVariables] fail, err = %v", err)
		return nil, err
	}
	answer := make([]dap.Variable, 0, 10)
	for _, name := range d.parseVariableNames(m) {
		variable, err := d.Resolver.Resolve(frame, name, name, frame.FrameID)
		if err != nil {
			logrus.Warnf("[getLocalVariables] resolve %s fail, err = %v", name, err)
			continue
		}
		answer = append(answer, variable)
	}
	return answer, nil
}

// parseVariableNames 从stack-list-variables输出中提取变量名
func (d *EmbeddedDebugger) parseVariableNames(m map[string]interface{}) []string {
	payload, success := d.OutputUtil.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	names := []string{}
	for _, v := range d.OutputUtil.GetListFromMap(payload, "variables") {
		if name := d.OutputUtil.GetStringFromMap(v, "name"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// selectFrame 切换线程和栈帧，tracked变量在当前帧上下文中求值
func (d *EmbeddedDebugger) selectFrame(frame FrameRef) error {
	if frame.ThreadID <= 0 && frame.FrameID < 0 {
		return nil
	}
	if frame.ThreadID > 0 {
		if _, err := d.GDB.SendWithTimeout(OptionTimeout, "thread-select", strconv.Itoa(frame.ThreadID)); err != nil {
			return err
		}
	}
	if frame.FrameID >= 0 {
		if _, err := d.GDB.SendWithTimeout(OptionTimeout, "stack-select-frame", strconv.Itoa(frame.FrameID)); err != nil {
			return err
		}
	}
	return nil
}

// GetThreads 获取线程列表
func (d *EmbeddedDebugger) GetThreads(ctx context.Context) ([]dap.Thread, error) {
	if d.GDB == nil {
		return nil, e.ErrDebuggerNotStarted
	}
	m, err := d.GDB.SendWithTimeout(OptionTimeout, "thread-info")
	if err != nil {
		return []dap.Thread{{Id: 1, Name: "Target"}}, nil
	}
	threads, _ := d.OutputUtil.ParseThreadInfoOutput(m)
	if len(threads) == 0 {
		return []dap.Thread{{Id: 1, Name: "Target"}}, nil
	}
	answer := make([]dap.Thread, 0, len(threads))
	for _, thread := range threads {
		answer = append(answer, dap.Thread{Id: thread.ID, Name: thread.Name})
	}
	return answer, nil
}

// Evaluate console模式的求值原样透传给gdb，返回console回显
func (d *EmbeddedDebugger) Evaluate(ctx context.Context, expression string, evalContext string) (string, error) {
	if d.GDB == nil {
		return "", e.ErrDebuggerNotStarted
	}
	d.beginConsoleCapture()
	_, err := d.GDB.SendWithTimeout(OptionTimeout, "interpreter-exec", "console", quoteArgument(expression))
	output := d.endConsoleCapture()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(output, "\n"), nil
}

// Disconnect 断开调试
// 清理是尽力而为的：每一步失败只记录，不阻断后续步骤
func (d *EmbeddedDebugger) Disconnect(ctx context.Context) error {
	if d.StatusManager.Is(utils.Finish) {
		return nil
	}
	if d.GDB != nil {
		if d.StatusManager.Is(utils.Running) {
			if _, err := d.GDB.SendWithTimeout(OptionTimeout, "exec-interrupt"); err != nil {
				logrus.Warnf("[Disconnect] interrupt fail, err = %v", err)
			}
		}
		if _, err := d.GDB.SendWithTimeout(OptionTimeout, "target-detach"); err != nil {
			logrus.Warnf("[Disconnect] detach fail, err = %v", err)
		}
		if err := d.GDB.Exit(); err != nil {
			logrus.Warnf("[Disconnect] gdb exit fail, err = %v", err)
		}
	}
	if d.server != nil {
		d.server.Kill()
	}
	d.StatusManager.Set(utils.Finish)
	return nil
}

// IsRunning 目标是否在运行，断点对账用
func (d *EmbeddedDebugger) IsRunning() bool {
	return d.StatusManager.Is(utils.Running)
}

// InterruptAndWait 中断目标并等待真正停下
func (d *EmbeddedDebugger) InterruptAndWait(ctx context.Context) error {
	stopped := d.Classifier.PreparePause()
	if err := d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-interrupt"); err != nil {
		return err
	}
	select {
	case <-stopped:
		return nil
	case <-time.After(OptionTimeout):
		return fmt.Errorf("wait for target stop time out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume 恢复执行，不等待完成
func (d *EmbeddedDebugger) Resume() {
	_ = d.GDB.SendAsync(func(map[string]interface{}) {}, "exec-continue")
}

// gdbNotificationCallback 处理gdb异步通知的回调
func (d *EmbeddedDebugger) gdbNotificationCallback(m map[string]interface{}) {
	switch d.OutputUtil.GetStringFromMap(m, "type") {
	case "exec":
		payload, _ := d.OutputUtil.GetPayloadFromMap(m)
		switch d.OutputUtil.GetStringFromMap(m, "class") {
		case "stopped":
			d.setCurrentThreadID(payload)
			d.StatusManager.Set(utils.Stopped)
			d.Classifier.ProcessStopped(payload)
		case "running":
			d.StatusManager.Set(utils.Running)
		}
	case "console":
		if payload, ok := d.OutputUtil.GetPayloadFromMap(m); ok {
			if text, ok := payload.(string); ok {
				d.appendConsole(text)
			}
		}
	case "status":
		if d.OutputUtil.GetStringFromMap(m, "class") != "download" {
			return
		}
		if percent, ok := d.OutputUtil.ParseDownloadStatusOutput(m); ok {
			d.emitEvent(&dap.OutputEvent{
				Event: *NewEvent(0, "output"),
				Body: dap.OutputEventBody{
					Category: "console",
					Output:   fmt.Sprintf("downloading image: %d%%\n", percent),
					Data:     marshalEventData(protocol.ProgressEvent{Percent: percent}),
				},
			})
		}
	}
}

// processTargetOutput 循环读取目标的终端输出，转成output事件
func (d *EmbeddedDebugger) processTargetOutput(ctx context.Context) {
	b := make([]byte, 1024)
	for {
		n, err := d.GDB.Read(b)
		if err != nil {
			return
		}
		d.emitOutputWithCategory("stdout", string(b[0:n]))
	}
}

func (d *EmbeddedDebugger) onServerOutput(stream string, line string) {
	category := "stdout"
	if stream == "stderr" {
		category = "stderr"
	}
	d.emitEvent(&dap.OutputEvent{
		Event: *NewEvent(0, "output"),
		Body: dap.OutputEventBody{
			Category: category,
			Output:   line + "\n",
			Data:     marshalEventData(protocol.ServerOutputEvent{Stream: stream, Line: line}),
		},
	})
}

func (d *EmbeddedDebugger) onServerError(message string) {
	d.emitOutputWithCategory("stderr", message+"\n")
}

// onServerExit gdb server退出
// 会话进行中的异常退出会强制结束会话
func (d *EmbeddedDebugger) onServerExit(code int, signal string) {
	logrus.Infof("[Supervisor] gdb server exit, code = %d, signal = %s", code, signal)
	if code > 0 && !d.StatusManager.Is(utils.Finish) {
		d.StatusManager.Set(utils.Finish)
		d.emitEvent(&dap.OutputEvent{
			Event: *NewEvent(0, "output"),
			Body: dap.OutputEventBody{
				Category: "console",
				Output:   fmt.Sprintf("gdb server exited with code %d\n", code),
				Data:     marshalEventData(protocol.ServerExitEvent{Code: code, Signal: signal}),
			},
		})
		d.emitEvent(&dap.TerminatedEvent{Event: *NewEvent(0, "terminated")})
	}
}

func (d *EmbeddedDebugger) setCurrentThreadID(payload interface{}) {
	threadID, err := strconv.Atoi(d.OutputUtil.GetStringFromMap(payload, "thread-id"))
	if err != nil {
		return
	}
	d.threadMutex.Lock()
	d.currentThreadID = threadID
	d.threadMutex.Unlock()
}

func (d *EmbeddedDebugger) getCurrentThreadID() int {
	d.threadMutex.RLock()
	defer d.threadMutex.RUnlock()
	if d.currentThreadID == 0 {
		return 1
	}
	return d.currentThreadID
}

func (d *EmbeddedDebugger) beginConsoleCapture() {
	d.consoleMutex.Lock()
	defer d.consoleMutex.Unlock()
	d.consoleCapturing = true
	d.consoleBuf.Reset()
}

func (d *EmbeddedDebugger) endConsoleCapture() string {
	d.consoleMutex.Lock()
	defer d.consoleMutex.Unlock()
	d.consoleCapturing = false
	return d.consoleBuf.String()
}

func (d *EmbeddedDebugger) appendConsole(text string) {
	d.consoleMutex.Lock()
	defer d.consoleMutex.Unlock()
	if d.consoleCapturing {
		d.consoleBuf.WriteString(text)
	}
}

func (d *EmbeddedDebugger) emitOutputWithCategory(category string, output string) {
	d.emitEvent(&dap.OutputEvent{
		Event: *NewEvent(0, "output"),
		Body:  dap.OutputEventBody{Category: category, Output: output},
	})
}

func (d *EmbeddedDebugger) emitEvent(event dap.EventMessage) {
	if d.callback == nil {
		return
	}
	d.callback(event)
}

// marshalEventData output事件的data字段要求json原文
func marshalEventData(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// buildController 根据launch参数构造server controller
func buildController(args protocol.LaunchArguments) gdbserver.ServerController {
	switch args.ServerType {
	case "openocd":
		return gdbserver.NewOpenOCDController(args.ServerPath, args.ConfigFiles, args.Port)
	default:
		return gdbserver.NewGenericController(args.ServerPath, args.ServerArgs, args.Port,
			args.StartMatch, args.ErrorMatch)
	}
}
