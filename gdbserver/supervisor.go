package gdbserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	e "github.com/fansqz/embedded-debugger/error"
	"github.com/fansqz/embedded-debugger/utils"
	"github.com/fansqz/embedded-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
)

// gdb server进程状态，由Supervisor独占管理
const (
	NotStarted = "NotStarted"
	Starting   = "Starting"
	Running    = "Running"
	Exited     = "Exited"
)

const StartTimeout = time.Second * 10

// ServerController 具体gdb server的差异部分
// Supervisor只负责进程生命周期，就绪/出错判定和端口解析由各server实现
type ServerController interface {
	// LaunchCommand 返回启动命令、参数和附加环境变量
	LaunchCommand() (command string, args []string, env []string)
	// ServerStarted 判断一行输出是否表示server已就绪
	ServerStarted(line string) bool
	// ServerError 判断一行输出是否表示server出错
	ServerError(line string) bool
	// ResolvePort 请求端口映射到实际监听端口
	ResolvePort(requested int) int
	// InitCommands target-select之后需要执行的monitor命令
	InitCommands() []string
}

// Events Supervisor对外的事件回调
type Events struct {
	OnOutput func(stream string, line string)
	OnError  func(message string)
	OnExit   func(code int, signal string)
}

// Supervisor 管理一个外部gdb server进程
// 生命周期：NotStarted -> Starting -> Running -> Exited
type Supervisor struct {
	controller ServerController
	events     Events
	status     *utils.StatusManager
	timeout    *utils.TimeoutManager

	// Dir server进程的工作目录，空则继承当前进程
	Dir string

	mutex     sync.Mutex
	cmd       *exec.Cmd
	startCh   chan error
	startDone bool
}

func NewSupervisor(controller ServerController, events Events) *Supervisor {
	s := &Supervisor{
		controller: controller,
		events:     events,
		status:     utils.NewStatusManager(),
		timeout:    utils.NewTimeoutManager(),
	}
	s.status.Set(NotStarted)
	return s
}

// State 当前进程状态
func (s *Supervisor) State() string {
	return s.status.Get()
}

// Spawn 启动server进程并阻塞等待就绪
// 就绪由controller.ServerStarted判定；超时或进程提前退出都会失败
func (s *Supervisor) Spawn(ctx context.Context) error {
	command, args, env := s.controller.LaunchCommand()
	cmd := exec.Command(command, args...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.cmd = cmd
	s.startCh = make(chan error, 1)
	s.startDone = false
	s.mutex.Unlock()

	if err = cmd.Start(); err != nil {
		s.status.Set(Exited)
		return err
	}
	s.status.Set(Starting)
	logrus.Infof("[Supervisor] started %s, pid = %d", command, cmd.Process.Pid)

	gosync.Go(ctx, func(ctx context.Context) { s.readStream("stdout", stdout) })
	gosync.Go(ctx, func(ctx context.Context) { s.readStream("stderr", stderr) })
	gosync.Go(ctx, func(ctx context.Context) { s.waitExit() })
	s.timeout.Start(StartTimeout, func() {
		s.resolveStart(e.ErrServerStartTimeout)
	})

	select {
	case err = <-s.startCh:
		s.timeout.Cancel()
		return err
	case <-ctx.Done():
		s.timeout.Cancel()
		return ctx.Err()
	}
}

// Kill 发送中断信号，进程未运行时为空操作
func (s *Supervisor) Kill() {
	s.mutex.Lock()
	cmd := s.cmd
	s.mutex.Unlock()
	if cmd == nil || cmd.Process == nil || s.status.Is(NotStarted, Exited) {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
}

// resolveStart 解决启动future，只生效一次，返回是否由本次调用解决
func (s *Supervisor) resolveStart(err error) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.startCh == nil || s.startDone {
		return false
	}
	s.startDone = true
	s.startCh <- err
	return true
}

// readStream 持续读取一路输出，按行切分
// 每个字节流维护独立的缓冲区，只保留末尾不完整的一行
func (s *Supervisor) readStream(stream string, reader io.Reader) {
	buffer := make([]byte, 0, 1024)
	chunk := make([]byte, 4096)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				i := bytes.IndexByte(buffer, '\n')
				if i < 0 {
					break
				}
				line := strings.TrimRight(string(buffer[:i]), "\r")
				buffer = buffer[i+1:]
				if s.events.OnOutput != nil {
					s.events.OnOutput(stream, line)
				}
				s.handleData(line)
			}
		}
		if err != nil {
			return
		}
	}
}

// handleData 对一行输出做就绪/出错判定
// 就绪判定只对第一条匹配的行生效，后续匹配行不再触发
func (s *Supervisor) handleData(line string) {
	if s.controller.ServerStarted(line) {
		if s.resolveStart(nil) {
			s.status.Set(Running)
			s.timeout.Cancel()
			logrus.Infof("[Supervisor] gdb server is ready")
		}
	}
	if s.controller.ServerError(line) && s.events.OnError != nil {
		s.events.OnError(firstLine(line))
	}
}

// waitExit 等待进程退出
// 异常退出（非零退出码）先报error事件，再报exit事件
func (s *Supervisor) waitExit() {
	err := s.cmd.Wait()
	s.status.Set(Exited)
	s.timeout.Cancel()

	code := 0
	signal := ""
	if state := s.cmd.ProcessState; state != nil {
		code = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			signal = ws.Signal().String()
		}
	}
	if err != nil {
		logrus.Warnf("[Supervisor] gdb server exited, err = %v", err)
	}

	if code > 0 {
		message := fmt.Sprintf("gdb server exited with code %d", code)
		if s.events.OnError != nil {
			s.events.OnError(message)
		}
		s.resolveStart(fmt.Errorf("%s", message))
	} else {
		s.resolveStart(fmt.Errorf("gdb server exited before becoming ready"))
	}
	if s.events.OnExit != nil {
		s.events.OnExit(code, signal)
	}
}

func firstLine(message string) string {
	return strings.SplitN(message, "\n", 2)[0]
}
