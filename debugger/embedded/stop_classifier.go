package embedded

import (
	"strconv"
	"sync"

	"github.com/fansqz/embedded-debugger/constants"
	. "github.com/fansqz/embedded-debugger/debugger"
	"github.com/google/go-dap"
)

// StopClassifier 把gdb的*stopped通知分类成前端事件
// 除LogPointTable和未决的pause future外不持有状态
type StopClassifier struct {
	client    MIClient
	out       *GDBOutputUtil
	logPoints *LogPointTable
	callback  NotificationCallback

	mutex sync.Mutex
	// pendingPause 最多一个未决的"等待目标真正停下"future
	pendingPause chan struct{}
}

func NewStopClassifier(client MIClient, out *GDBOutputUtil, logPoints *LogPointTable,
	callback NotificationCallback) *StopClassifier {
	return &StopClassifier{
		client:    client,
		out:       out,
		logPoints: logPoints,
		callback:  callback,
	}
}

// PreparePause 在发出中断前调用，返回的channel在下一次signal类停止时关闭
func (s *StopClassifier) PreparePause() <-chan struct{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.pendingPause == nil {
		s.pendingPause = make(chan struct{})
	}
	return s.pendingPause
}

func (s *StopClassifier) resolvePause() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.pendingPause != nil {
		close(s.pendingPause)
		s.pendingPause = nil
	}
}

// ProcessStopped 处理一条*stopped通知的payload
func (s *StopClassifier) ProcessStopped(payload interface{}) {
	reason := s.out.GetStringFromMap(payload, "reason")
	threadID, _ := strconv.Atoi(s.out.GetStringFromMap(payload, "thread-id"))
	allStopped := s.out.GetStringFromMap(payload, "stopped-threads") == "all"

	switch reason {
	case constants.MIReasonExited, constants.MIReasonExitedNormally:
		// 目标退出，会话结束
		s.callback(&dap.TerminatedEvent{Event: *NewEvent(0, "terminated")})
	case constants.MIReasonBreakpointHit:
		number := s.out.GetStringFromMap(payload, "bkptno")
		if message, ok := s.logPoints.Lookup(number); ok {
			// 日志点：输出消息并继续执行，对前端完全透明
			s.callback(&dap.OutputEvent{
				Event: *NewEvent(0, "output"),
				Body:  dap.OutputEventBody{Category: "console", Output: message + "\n"},
			})
			_ = s.client.SendAsync(func(map[string]interface{}) {}, "exec-continue")
			return
		}
		s.emitStopped(string(constants.BreakpointStopped), threadID, allStopped)
	case constants.MIReasonEndSteppingRange, constants.MIReasonFunctionFinished:
		s.emitStopped(string(constants.StepStopped), threadID, allStopped)
	case constants.MIReasonSignalReceived:
		name := s.out.GetStringFromMap(payload, "signal-name")
		if name == "" {
			name = string(constants.SignalStopped)
		}
		s.resolvePause()
		s.emitStopped(name, threadID, allStopped)
	default:
		s.emitStopped(string(constants.GenericStopped), threadID, allStopped)
	}
}

func (s *StopClassifier) emitStopped(reason string, threadID int, allStopped bool) {
	s.callback(&dap.StoppedEvent{
		Event: *NewEvent(0, "stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          threadID,
			AllThreadsStopped: allStopped,
		},
	})
}
