package embedded

import (
	"io"
	"sync"
	"time"

	"github.com/fansqz/embedded-debugger/debugger/embedded/gdb"
)

type sentCommand struct {
	Operation string
	Args      []string
}

// fakeMIClient 脚本化的mi命令通道
// 按operation维护响应队列，队列耗尽后返回空的done记录
type fakeMIClient struct {
	mutex     sync.Mutex
	responses map[string][]map[string]interface{}
	failures  map[string]error
	sent      []sentCommand
	async     []sentCommand
	exits     int
}

func newFakeMIClient() *fakeMIClient {
	return &fakeMIClient{
		responses: map[string][]map[string]interface{}{},
		failures:  map[string]error{},
	}
}

func (f *fakeMIClient) respond(operation string, m map[string]interface{}) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.responses[operation] = append(f.responses[operation], m)
}

func (f *fakeMIClient) fail(operation string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.failures[operation] = err
}

func (f *fakeMIClient) Send(operation string, args ...string) (map[string]interface{}, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sent = append(f.sent, sentCommand{Operation: operation, Args: args})
	if err, ok := f.failures[operation]; ok {
		return nil, err
	}
	queue := f.responses[operation]
	if len(queue) == 0 {
		return map[string]interface{}{"type": "result", "class": "done"}, nil
	}
	m := queue[0]
	f.responses[operation] = queue[1:]
	return m, nil
}

func (f *fakeMIClient) SendWithTimeout(timeout time.Duration, operation string, args ...string) (map[string]interface{}, error) {
	return f.Send(operation, args...)
}

func (f *fakeMIClient) SendAsync(callback gdb.AsyncCallback, operation string, args ...string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.async = append(f.async, sentCommand{Operation: operation, Args: args})
	return nil
}

func (f *fakeMIClient) Interrupt() error { return nil }

func (f *fakeMIClient) Exit() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.exits++
	return nil
}

func (f *fakeMIClient) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakeMIClient) Read(p []byte) (int, error) { return 0, io.EOF }

func (f *fakeMIClient) countSent(operation string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	count := 0
	for _, c := range f.sent {
		if c.Operation == operation {
			count++
		}
	}
	return count
}

func (f *fakeMIClient) countAsync(operation string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	count := 0
	for _, c := range f.async {
		if c.Operation == operation {
			count++
		}
	}
	return count
}

func (f *fakeMIClient) sentArgs(operation string) [][]string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	answer := [][]string{}
	for _, c := range f.sent {
		if c.Operation == operation {
			answer = append(answer, c.Args)
		}
	}
	return answer
}
