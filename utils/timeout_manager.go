package utils

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeoutManager 一个计时器
// 如果在timeout时间内没有执行Cancel命令，就会执行fun函数
type TimeoutManager struct {
	mutex sync.Mutex
	timer *time.Timer
}

// NewTimeoutManager 创建一个新的计时器实例
func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{}
}

// Start 开始计时，到期执行option
// 重复Start会先取消上一次计时
func (t *TimeoutManager) Start(timeout time.Duration, option func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(timeout, func() {
		logrus.Infof("[TimeoutManager] timer expired, performing action")
		option()
	})
}

// Cancel 取消计时
func (t *TimeoutManager) Cancel() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
