package utils

import "sync"

const (
	// Init 调试初始化状态
	Init = "Init"
	// Stopped 目标程序暂停
	Stopped = "stopped"
	// Running 目标程序运行中
	Running = "running"
	// Finish 调试结束状态
	Finish = "finish"
)

// StatusManager 记录调试目标的运行状态
// gdb server进程的状态由gdbserver.Supervisor单独管理，不走这里
type StatusManager struct {
	lock   sync.RWMutex
	status string
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status: Init,
	}
}

func (s *StatusManager) Set(status string) {
	defer s.lock.Unlock()
	s.lock.Lock()
	s.status = status
}

func (s *StatusManager) Get() string {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...string) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
