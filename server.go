package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/fansqz/embedded-debugger/debugger"
	"github.com/fansqz/embedded-debugger/debugger/embedded"
	"github.com/fansqz/embedded-debugger/protocol"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// 各请求失败时错误响应的id
const (
	FailedToLaunch            = 103
	FailedToAttach            = 104
	FailedToDisconnect        = 105
	FailedToPause             = 106
	FailedToGetStackTrace     = 107
	FailedToGetScopes         = 108
	FailedToGetVariables      = 109
	FailedToEvaluate          = 110
	FailedToSetBreakpoints    = 111
	FailedToConfigurationDone = 112
	FailedToContinue          = 113
	FailedToStep              = 114
	FailedToGetThreads        = 115
	UnableToProcess           = 116
)

// DebugSession 一个客户端连接对应的调试会话
// 调试器在launch/attach请求到来时创建，事件和响应都通过sendMutex串行写回
type DebugSession struct {
	id   string
	conn net.Conn
	rw   *bufio.ReadWriter

	debugger  debugger.Debugger
	sendMutex sync.Mutex
}

func NewDebugSession(id string, conn net.Conn) *DebugSession {
	return &DebugSession{
		id:   id,
		conn: conn,
		rw:   bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
	}
}

// handleConnection 处理一个客户端连接，逐条读取并分发dap请求
func handleConnection(id string, conn net.Conn) {
	session := NewDebugSession(id, conn)
	for {
		request, err := dap.ReadProtocolMessage(session.rw.Reader)
		if err != nil {
			if err == io.EOF {
				logrus.Infof("[DebugSession] session %s closed", id)
			} else {
				logrus.Errorf("[DebugSession] session %s read fail, err = %v", id, err)
			}
			break
		}
		session.dispatchRequest(request)
	}
	if session.debugger != nil {
		_ = session.debugger.Disconnect(context.Background())
	}
	_ = conn.Close()
}

func (d *DebugSession) dispatchRequest(request dap.Message) {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		d.onInitializeRequest(request)
	case *dap.LaunchRequest:
		d.onLaunchRequest(request)
	case *dap.AttachRequest:
		d.onAttachRequest(request)
	case *dap.SetBreakpointsRequest:
		d.onSetBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		d.onConfigurationDoneRequest(request)
	case *dap.ContinueRequest:
		d.onContinueRequest(request)
	case *dap.NextRequest:
		d.onNextRequest(request)
	case *dap.StepInRequest:
		d.onStepInRequest(request)
	case *dap.StepOutRequest:
		d.onStepOutRequest(request)
	case *dap.PauseRequest:
		d.onPauseRequest(request)
	case *dap.StackTraceRequest:
		d.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		d.onScopesRequest(request)
	case *dap.VariablesRequest:
		d.onVariablesRequest(request)
	case *dap.ThreadsRequest:
		d.onThreadsRequest(request)
	case *dap.EvaluateRequest:
		d.onEvaluateRequest(request)
	case *dap.DisconnectRequest:
		d.onDisconnectRequest(request)
	default:
		if baseReq, ok := request.(*dap.Request); ok {
			d.sendError(baseReq.Seq, baseReq.Command, UnableToProcess,
				fmt.Sprintf("%s is not yet supported", baseReq.Command))
		}
	}
}

// requireDebugger 校验调试器已经启动
// initialized事件发出后前端随时可能下发配置请求，launch成功前统一拒绝
func (d *DebugSession) requireDebugger(requestSeq int, command string, id int) bool {
	if d.debugger == nil {
		d.sendError(requestSeq, command, id, "debugger not started")
		return false
	}
	return true
}

// send 响应或事件写回客户端，多个goroutine共用连接，必须串行
func (d *DebugSession) send(message dap.Message) {
	d.sendMutex.Lock()
	defer d.sendMutex.Unlock()
	if err := dap.WriteProtocolMessage(d.rw.Writer, message); err != nil {
		logrus.Errorf("[DebugSession] write message fail, err = %v", err)
		return
	}
	_ = d.rw.Flush()
}

func (d *DebugSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsLogPoints = true
	response.Body.SupportsEvaluateForHovers = false
	response.Body.SupportsFunctionBreakpoints = false
	response.Body.SupportsStepBack = false
	response.Body.SupportsSetVariable = false
	response.Body.SupportsRestartRequest = false
	response.Body.SupportsTerminateRequest = false
	response.Body.SupportsReadMemoryRequest = false
	response.Body.SupportsDisassembleRequest = false
	d.send(response)
	d.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
}

func (d *DebugSession) onLaunchRequest(request *dap.LaunchRequest) {
	var arguments protocol.LaunchArguments
	if err := json.Unmarshal(request.Arguments, &arguments); err != nil {
		d.sendError(request.Seq, request.Command, FailedToLaunch, err.Error())
		return
	}
	if err := d.startDebugger(arguments, false); err != nil {
		d.sendError(request.Seq, request.Command, FailedToLaunch, err.Error())
		return
	}
	response := &dap.LaunchResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onAttachRequest(request *dap.AttachRequest) {
	var arguments protocol.AttachArguments
	if err := json.Unmarshal(request.Arguments, &arguments); err != nil {
		d.sendError(request.Seq, request.Command, FailedToAttach, err.Error())
		return
	}
	if err := d.startDebugger(arguments.LaunchArguments, true); err != nil {
		d.sendError(request.Seq, request.Command, FailedToAttach, err.Error())
		return
	}
	response := &dap.AttachResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) startDebugger(arguments protocol.LaunchArguments, attach bool) error {
	if d.debugger != nil {
		return fmt.Errorf("session %s already has a running debugger", d.id)
	}
	debug := embedded.NewEmbeddedDebugger()
	err := debug.Start(context.Background(), &debugger.StartOption{
		Arguments: arguments,
		Attach:    attach,
		Callback: func(event dap.EventMessage) {
			d.send(event)
		},
	})
	if err != nil {
		return err
	}
	d.debugger = debug
	return nil
}

func (d *DebugSession) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToSetBreakpoints) {
		return
	}
	breakpoints, err := d.debugger.SetBreakpoints(context.Background(),
		request.Arguments.Source, request.Arguments.Breakpoints)
	if err != nil {
		d.sendError(request.Seq, request.Command, FailedToSetBreakpoints, err.Error())
		return
	}
	response := &dap.SetBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = breakpoints
	d.send(response)
}

func (d *DebugSession) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToConfigurationDone) {
		return
	}
	if err := d.debugger.ConfigurationDone(context.Background()); err != nil {
		d.sendError(request.Seq, request.Command, FailedToConfigurationDone, err.Error())
		return
	}
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onContinueRequest(request *dap.ContinueRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToContinue) {
		return
	}
	if err := d.debugger.Continue(context.Background()); err != nil {
		d.sendError(request.Seq, request.Command, FailedToContinue, err.Error())
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onNextRequest(request *dap.NextRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToStep) {
		return
	}
	if err := d.debugger.StepOver(context.Background()); err != nil {
		d.sendError(request.Seq, request.Command, FailedToStep, err.Error())
		return
	}
	response := &dap.NextResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepInRequest(request *dap.StepInRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToStep) {
		return
	}
	if err := d.debugger.StepIn(context.Background()); err != nil {
		d.sendError(request.Seq, request.Command, FailedToStep, err.Error())
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepOutRequest(request *dap.StepOutRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToStep) {
		return
	}
	if err := d.debugger.StepOut(context.Background()); err != nil {
		d.sendError(request.Seq, request.Command, FailedToStep, err.Error())
		return
	}
	response := &dap.StepOutResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onPauseRequest(request *dap.PauseRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToPause) {
		return
	}
	if err := d.debugger.Pause(context.Background()); err != nil {
		d.sendError(request.Seq, request.Command, FailedToPause, err.Error())
		return
	}
	response := &dap.PauseResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStackTraceRequest(request *dap.StackTraceRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToGetStackTrace) {
		return
	}
	stacktrace, err := d.debugger.GetStackTrace(context.Background())
	if err != nil {
		d.sendError(request.Seq, request.Command, FailedToGetStackTrace, err.Error())
		return
	}
	response := &dap.StackTraceResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.StackTraceResponseBody{
		StackFrames: stacktrace,
		TotalFrames: len(stacktrace),
	}
	d.send(response)
}

func (d *DebugSession) onScopesRequest(request *dap.ScopesRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToGetScopes) {
		return
	}
	scopes, err := d.debugger.GetScopes(context.Background(), request.Arguments.FrameId)
	if err != nil {
		d.sendError(request.Seq, request.Command, FailedToGetScopes, err.Error())
		return
	}
	response := &dap.ScopesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.ScopesResponseBody{Scopes: scopes}
	d.send(response)
}

func (d *DebugSession) onVariablesRequest(request *dap.VariablesRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToGetVariables) {
		return
	}
	variables, err := d.debugger.GetVariables(context.Background(), request.Arguments.VariablesReference)
	if err != nil {
		d.sendError(request.Seq, request.Command, FailedToGetVariables, err.Error())
		return
	}
	response := &dap.VariablesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.VariablesResponseBody{Variables: variables}
	d.send(response)
}

func (d *DebugSession) onThreadsRequest(request *dap.ThreadsRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToGetThreads) {
		return
	}
	threads, err := d.debugger.GetThreads(context.Background())
	if err != nil {
		d.sendError(request.Seq, request.Command, FailedToGetThreads, err.Error())
		return
	}
	response := &dap.ThreadsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.ThreadsResponseBody{Threads: threads}
	d.send(response)
}

func (d *DebugSession) onEvaluateRequest(request *dap.EvaluateRequest) {
	if !d.requireDebugger(request.Seq, request.Command, FailedToEvaluate) {
		return
	}
	result, err := d.debugger.Evaluate(context.Background(),
		request.Arguments.Expression, request.Arguments.Context)
	if err != nil {
		d.sendError(request.Seq, request.Command, FailedToEvaluate, err.Error())
		return
	}
	response := &dap.EvaluateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.EvaluateResponseBody{Result: result}
	d.send(response)
}

func (d *DebugSession) onDisconnectRequest(request *dap.DisconnectRequest) {
	if d.debugger != nil {
		if err := d.debugger.Disconnect(context.Background()); err != nil {
			d.sendError(request.Seq, request.Command, FailedToDisconnect, err.Error())
			return
		}
		d.debugger = nil
	}
	response := &dap.DisconnectResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) sendError(requestSeq int, command string, id int, message string) {
	er := &dap.ErrorResponse{}
	er.Response = *newResponse(requestSeq, command)
	er.Success = false
	er.Message = message
	er.Body.Error = &dap.ErrorMessage{
		Id:     id,
		Format: message,
	}
	d.send(er)
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}
