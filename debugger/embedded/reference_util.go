package embedded

import (
	"sync"
)

// 变量引用的三段地址空间，数值是前端协议的一部分，不能改动
const (
	// GlobalHandle Global作用域的固定引用
	GlobalHandle = 0xFE
	// StaticStart Static作用域引用区间，引用值 = StaticStart + 栈帧引用
	StaticStart  = 0x010000
	StaticFinish = 0x01FFFF
	// handleStart 动态引用的起始值，位于两个保留区间之外
	handleStart = 0x100
)

// FrameRef 栈帧引用，Local作用域
type FrameRef struct {
	ThreadID int
	FrameID  int
}

// ObjectRef 可展开变量的引用
type ObjectRef struct {
	// FrameHandle 变量解析时使用的栈帧引用
	FrameHandle int
	// VarName 后端tracked变量名
	VarName string
}

// ReferenceUtil 引用工具类
// 管理动态引用表，静态区间的引用是纯算术编码，不入表
type ReferenceUtil struct {
	mutex   sync.RWMutex
	nextRef int
	frames  map[int]FrameRef
	objects map[int]ObjectRef
}

func NewReferenceUtil() *ReferenceUtil {
	return &ReferenceUtil{
		nextRef: handleStart,
		frames:  map[int]FrameRef{},
		objects: map[int]ObjectRef{},
	}
}

// allocate 分配下一个未使用的引用
// 引用单调递增，跳过静态区间，会话存续期间不复用
func (r *ReferenceUtil) allocate() int {
	if r.nextRef == StaticStart {
		r.nextRef = StaticFinish + 1
	}
	ref := r.nextRef
	r.nextRef++
	return ref
}

// CreateFrameReference 为栈帧创建引用
func (r *ReferenceUtil) CreateFrameReference(frame FrameRef) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ref := r.allocate()
	r.frames[ref] = frame
	return ref
}

// CreateObjectReference 为可展开变量创建引用
func (r *ReferenceUtil) CreateObjectReference(object ObjectRef) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ref := r.allocate()
	r.objects[ref] = object
	return ref
}

// ResolveFrame 解析栈帧引用，保留区间内的引用不在表中，返回false
func (r *ReferenceUtil) ResolveFrame(reference int) (FrameRef, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	frame, ok := r.frames[reference]
	return frame, ok
}

// ResolveObject 解析可展开变量引用
func (r *ReferenceUtil) ResolveObject(reference int) (ObjectRef, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	object, ok := r.objects[reference]
	return object, ok
}

// IsGlobalReference 判断是否是Global作用域引用
func (r *ReferenceUtil) IsGlobalReference(reference int) bool {
	return reference == GlobalHandle
}

// IsStaticReference 判断是否是Static作用域引用
func (r *ReferenceUtil) IsStaticReference(reference int) bool {
	return reference >= StaticStart && reference <= StaticFinish
}

// StaticReference 栈帧引用编码为Static作用域引用
// 栈帧引用超出区间容量时返回false，该栈帧没有Static作用域
func (r *ReferenceUtil) StaticReference(frameHandle int) (int, bool) {
	if frameHandle < 0 || frameHandle >= StaticFinish-StaticStart+1 {
		return 0, false
	}
	return StaticStart + frameHandle, true
}

// FrameHandleForStatic Static作用域引用还原为栈帧引用
func (r *ReferenceUtil) FrameHandleForStatic(reference int) int {
	return reference - StaticStart
}
