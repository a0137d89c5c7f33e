package embedded

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameReferenceRoundTrip(t *testing.T) {
	util := NewReferenceUtil()
	frame := FrameRef{ThreadID: 1, FrameID: 2}
	ref := util.CreateFrameReference(frame)

	got, ok := util.ResolveFrame(ref)
	assert.True(t, ok)
	assert.Equal(t, frame, got)

	_, ok = util.ResolveObject(ref)
	assert.False(t, ok)
}

func TestObjectReferenceRoundTrip(t *testing.T) {
	util := NewReferenceUtil()
	object := ObjectRef{FrameHandle: 0x100, VarName: "s.inner"}
	ref := util.CreateObjectReference(object)

	got, ok := util.ResolveObject(ref)
	assert.True(t, ok)
	assert.Equal(t, object, got)
}

func TestReferencesAreNotReused(t *testing.T) {
	util := NewReferenceUtil()
	first := util.CreateFrameReference(FrameRef{ThreadID: 1, FrameID: 0})
	second := util.CreateFrameReference(FrameRef{ThreadID: 1, FrameID: 1})
	assert.NotEqual(t, first, second)
	assert.Greater(t, second, first)
}

func TestAllocationSkipsStaticRange(t *testing.T) {
	util := NewReferenceUtil()
	util.nextRef = StaticStart - 1

	before := util.CreateFrameReference(FrameRef{ThreadID: 1, FrameID: 0})
	after := util.CreateFrameReference(FrameRef{ThreadID: 1, FrameID: 1})
	assert.Equal(t, StaticStart-1, before)
	assert.Equal(t, StaticFinish+1, after)
	assert.False(t, util.IsStaticReference(before))
	assert.False(t, util.IsStaticReference(after))
}

func TestGlobalReference(t *testing.T) {
	util := NewReferenceUtil()
	assert.True(t, util.IsGlobalReference(GlobalHandle))
	assert.False(t, util.IsGlobalReference(0x100))
}

func TestStaticReferenceEncoding(t *testing.T) {
	util := NewReferenceUtil()
	frameHandle := util.CreateFrameReference(FrameRef{ThreadID: 1, FrameID: 0})

	static, ok := util.StaticReference(frameHandle)
	assert.True(t, ok)
	assert.True(t, util.IsStaticReference(static))
	assert.Equal(t, frameHandle, util.FrameHandleForStatic(static))
}

func TestStaticReferenceOutOfRange(t *testing.T) {
	util := NewReferenceUtil()
	_, ok := util.StaticReference(StaticFinish - StaticStart + 1)
	assert.False(t, ok)
	_, ok = util.StaticReference(-1)
	assert.False(t, ok)
}

func TestAddressSpacesAreDisjoint(t *testing.T) {
	util := NewReferenceUtil()
	for i := 0; i < 100; i++ {
		ref := util.CreateFrameReference(FrameRef{ThreadID: 1, FrameID: i})
		assert.False(t, util.IsGlobalReference(ref))
		assert.False(t, util.IsStaticReference(ref))
	}
}
