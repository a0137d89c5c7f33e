package embedded

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	. "github.com/fansqz/embedded-debugger/debugger"
	"github.com/fansqz/embedded-debugger/debugger/embedded/gdb"
	"github.com/fansqz/embedded-debugger/gdbserver"
	"github.com/fansqz/embedded-debugger/protocol"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
)

// 启动中途失败时gdb和gdb server都要收掉，不能留下孤儿进程
func TestStartCleansUpWhenTargetSelectFails(t *testing.T) {
	client := newFakeMIClient()
	client.fail("target-select", fmt.Errorf("connection refused"))

	d := NewEmbeddedDebugger()
	d.newClient = func(cmd []string, onNotification gdb.NotificationCallback) (MIClient, error) {
		return client, nil
	}
	err := d.Start(context.Background(), &StartOption{
		Arguments: protocol.LaunchArguments{
			ServerPath: "sh",
			ServerArgs: []string{"-c", "echo Listening; sleep 5"},
		},
		Callback: func(dap.EventMessage) {},
	})
	assert.Error(t, err)
	assert.Equal(t, 1, client.exits)

	// Kill发出的中断要让server进程退出
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.server.State() == gdbserver.Exited {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, gdbserver.Exited, d.server.State())
}

func TestServerOutputEventCarriesData(t *testing.T) {
	collector := &eventCollector{}
	d := NewEmbeddedDebugger()
	d.callback = collector.callback

	d.onServerOutput("stderr", "Error: no device found")

	assert.Len(t, collector.events, 1)
	output, ok := collector.events[0].(*dap.OutputEvent)
	assert.True(t, ok)
	assert.Equal(t, "stderr", output.Body.Category)
	assert.Equal(t, "Error: no device found\n", output.Body.Output)

	var payload protocol.ServerOutputEvent
	assert.NoError(t, json.Unmarshal(output.Body.Data, &payload))
	assert.Equal(t, "stderr", payload.Stream)
	assert.Equal(t, "Error: no device found", payload.Line)
}

// server异常退出先报带退出码的输出事件，再终止会话
func TestAbnormalServerExitTerminatesSession(t *testing.T) {
	collector := &eventCollector{}
	d := NewEmbeddedDebugger()
	d.callback = collector.callback

	d.onServerExit(1, "")

	assert.Len(t, collector.events, 2)
	output, ok := collector.events[0].(*dap.OutputEvent)
	assert.True(t, ok)
	var payload protocol.ServerExitEvent
	assert.NoError(t, json.Unmarshal(output.Body.Data, &payload))
	assert.Equal(t, 1, payload.Code)

	_, ok = collector.events[1].(*dap.TerminatedEvent)
	assert.True(t, ok)

	// 已结束的会话不再重复上报
	d.onServerExit(1, "")
	assert.Len(t, collector.events, 2)
}
