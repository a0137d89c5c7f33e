package gdbserver

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type eventRecorder struct {
	mutex  sync.Mutex
	lines  []string
	order  []string
	errors []string
}

func (r *eventRecorder) events() Events {
	return Events{
		OnOutput: func(stream string, line string) {
			r.mutex.Lock()
			defer r.mutex.Unlock()
			r.lines = append(r.lines, stream+": "+line)
		},
		OnError: func(message string) {
			r.mutex.Lock()
			defer r.mutex.Unlock()
			r.order = append(r.order, "error")
			r.errors = append(r.errors, message)
		},
		OnExit: func(code int, signal string) {
			r.mutex.Lock()
			defer r.mutex.Unlock()
			r.order = append(r.order, "exit")
		},
	}
}

// chunkReader 按预设分片返回数据，模拟行被任意切断的字节流
type chunkReader struct {
	chunks []string
	index  int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.index >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.index])
	c.index++
	return n, nil
}

func TestReadStreamReassemblesLines(t *testing.T) {
	recorder := &eventRecorder{}
	s := NewSupervisor(NewGenericController("st-util", nil, 0, "ready", ""), recorder.events())
	s.startCh = make(chan error, 1)

	reader := &chunkReader{chunks: []string{
		"Info: first li", "ne\r\nInfo: second line\nInfo: tail without newline",
	}}
	s.readStream("stdout", reader)

	// 完整的两行上报，末尾不完整的一行不上报
	assert.Equal(t, []string{
		"stdout: Info: first line",
		"stdout: Info: second line",
	}, recorder.lines)
}

func TestReadinessResolvesExactlyOnce(t *testing.T) {
	recorder := &eventRecorder{}
	controller := NewOpenOCDController("openocd", nil, 3333)
	s := NewSupervisor(controller, recorder.events())
	s.startCh = make(chan error, 1)
	s.status.Set(Starting)

	ready := "Info : Listening on port 3333 for gdb connections"
	s.handleData(ready)
	assert.Equal(t, Running, s.State())
	assert.NoError(t, <-s.startCh)

	// 重复的就绪行不再触发
	assert.False(t, s.resolveStart(nil))
	s.handleData(ready)
	select {
	case <-s.startCh:
		t.Fatal("readiness resolved twice")
	default:
	}
}

func TestErrorLineReported(t *testing.T) {
	recorder := &eventRecorder{}
	s := NewSupervisor(NewOpenOCDController("openocd", nil, 3333), recorder.events())
	s.startCh = make(chan error, 1)

	s.handleData("Error: unable to open CMSIS-DAP device")
	assert.Equal(t, []string{"Error: unable to open CMSIS-DAP device"}, recorder.errors)
}

func TestSpawnWaitsForReadiness(t *testing.T) {
	recorder := &eventRecorder{}
	controller := NewGenericController("sh", []string{"-c", "echo Listening; sleep 1"}, 0, "", "")
	s := NewSupervisor(controller, recorder.events())

	err := s.Spawn(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, Running, s.State())
	s.Kill()
}

func TestSpawnFailsOnEarlyExit(t *testing.T) {
	recorder := &eventRecorder{}
	controller := NewGenericController("sh", []string{"-c", "exit 3"}, 0, "", "")
	s := NewSupervisor(controller, recorder.events())

	err := s.Spawn(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "code 3")

	// 异常退出先报error再报exit
	time.Sleep(50 * time.Millisecond)
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	assert.Equal(t, []string{"error", "exit"}, recorder.order)
}

func TestSpawnFailsOnCleanEarlyExit(t *testing.T) {
	recorder := &eventRecorder{}
	controller := NewGenericController("sh", []string{"-c", "true"}, 0, "never-matches", "")
	s := NewSupervisor(controller, recorder.events())

	err := s.Spawn(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "before becoming ready")
}

func TestKillBeforeSpawnIsNoop(t *testing.T) {
	s := NewSupervisor(NewOpenOCDController("openocd", nil, 0), Events{})
	s.Kill()
	assert.Equal(t, NotStarted, s.State())
}

func TestOpenOCDLaunchCommand(t *testing.T) {
	controller := NewOpenOCDController("", []string{"interface/stlink.cfg", "target/stm32f4x.cfg"}, 0)
	command, args, _ := controller.LaunchCommand()
	assert.Equal(t, "openocd", command)
	assert.Equal(t, []string{
		"-c", "gdb_port 3333",
		"-f", "interface/stlink.cfg",
		"-f", "target/stm32f4x.cfg",
	}, args)
	assert.Equal(t, 3333, controller.ResolvePort(0))
	assert.Equal(t, 4444, controller.ResolvePort(4444))
	assert.Equal(t, []string{"monitor halt"}, controller.InitCommands())
}

func TestGenericControllerDefaults(t *testing.T) {
	controller := NewGenericController("st-util", nil, 0, "", "")
	assert.True(t, controller.ServerStarted("Listening at *:4242..."))
	assert.False(t, controller.ServerStarted("some output"))
	assert.True(t, controller.ServerError("ERROR: device not found"))
	assert.Equal(t, DefaultGDBPort, controller.ResolvePort(0))
}
