// Package gdb drives a gdb process through the MI2 interface. Commands are
// issued with numeric tokens so replies can be matched to their callbacks;
// everything else coming out of gdb is delivered to the notification
// callback. The inferior's terminal is a pty exposed through Read/Write.
package gdb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// AsyncCallback receives the result record of a single command.
type AsyncCallback func(obj map[string]interface{})

// NotificationCallback receives every async and stream record.
type NotificationCallback func(obj map[string]interface{})

const terminator = "(gdb)"

type Gdb struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	// master and slave side of the inferior's terminal
	ptm *os.File
	pts *os.File

	onNotification NotificationCallback

	mutex    sync.Mutex
	sequence int64
	pending  map[string]AsyncCallback
}

// New starts "gdb" from PATH. See NewCmd.
func New(onNotification NotificationCallback) (*Gdb, error) {
	return NewCmd([]string{"gdb"}, onNotification)
}

// NewCmd starts the given gdb command line in MI2 mode with a dedicated
// inferior tty and begins reading records from it.
func NewCmd(cmd []string, onNotification NotificationCallback) (*Gdb, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("empty gdb command")
	}
	g := &Gdb{
		onNotification: onNotification,
		sequence:       1,
		pending:        map[string]AsyncCallback{},
	}

	var err error
	if g.ptm, g.pts, err = pty.Open(); err != nil {
		return nil, err
	}

	args := append(append([]string{}, cmd[1:]...),
		"--nx", "--quiet", "--interpreter=mi2", "--tty="+g.pts.Name())
	g.cmd = exec.Command(cmd[0], args...)
	if g.stdin, err = g.cmd.StdinPipe(); err != nil {
		return nil, err
	}
	if g.stdout, err = g.cmd.StdoutPipe(); err != nil {
		return nil, err
	}
	if err = g.cmd.Start(); err != nil {
		g.ptm.Close()
		g.pts.Close()
		return nil, err
	}

	go g.recordReader()
	return g, nil
}

// Read reads the inferior's terminal output.
func (g *Gdb) Read(p []byte) (int, error) {
	return g.ptm.Read(p)
}

// Write writes to the inferior's terminal input.
func (g *Gdb) Write(p []byte) (int, error) {
	return g.ptm.Write(p)
}

// SendAsync issues an MI command. The callback fires once with the result
// record; it may fire on the reader goroutine, so it must not block.
func (g *Gdb) SendAsync(callback AsyncCallback, operation string, args ...string) error {
	g.mutex.Lock()
	token := strconv.FormatInt(g.sequence, 10)
	g.sequence++
	g.pending[token] = callback
	g.mutex.Unlock()

	buf := bytes.NewBufferString(token + "-" + operation)
	for _, arg := range args {
		buf.WriteString(" ")
		buf.WriteString(arg)
	}
	buf.WriteString("\n")
	if _, err := g.stdin.Write(buf.Bytes()); err != nil {
		g.mutex.Lock()
		delete(g.pending, token)
		g.mutex.Unlock()
		return err
	}
	return nil
}

// Send issues an MI command and blocks until its result record arrives.
func (g *Gdb) Send(operation string, args ...string) (map[string]interface{}, error) {
	channel := make(chan map[string]interface{}, 1)
	if err := g.SendAsync(func(obj map[string]interface{}) { channel <- obj }, operation, args...); err != nil {
		return nil, err
	}
	return <-channel, nil
}

// SendWithTimeout is Send with an upper bound on the wait.
func (g *Gdb) SendWithTimeout(timeout time.Duration, operation string, args ...string) (map[string]interface{}, error) {
	channel := make(chan map[string]interface{}, 1)
	if err := g.SendAsync(func(obj map[string]interface{}) { channel <- obj }, operation, args...); err != nil {
		return nil, err
	}
	select {
	case m := <-channel:
		return m, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%s timed out", operation)
	}
}

// Interrupt sends SIGINT to gdb, which forwards it to the target.
func (g *Gdb) Interrupt() error {
	return g.cmd.Process.Signal(os.Interrupt)
}

// Exit asks gdb to quit and waits briefly before killing it.
func (g *Gdb) Exit() error {
	_ = g.SendAsync(func(map[string]interface{}) {}, "gdb-exit")
	done := make(chan error, 1)
	go func() { done <- g.cmd.Wait() }()
	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		_ = g.cmd.Process.Kill()
		<-done
	}
	g.ptm.Close()
	g.pts.Close()
	return err
}

func (g *Gdb) recordReader() {
	scanner := bufio.NewScanner(g.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || line == terminator {
			continue
		}
		record, token := ParseRecord(line)
		if record == nil {
			continue
		}
		if token != "" {
			g.mutex.Lock()
			callback, ok := g.pending[token]
			if ok {
				delete(g.pending, token)
			}
			g.mutex.Unlock()
			if ok {
				callback(record)
				continue
			}
		}
		if g.onNotification != nil {
			g.onNotification(record)
		}
	}
}
