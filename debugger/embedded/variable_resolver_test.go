package embedded

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func varCreateRecord(name, value, varType string, numChild int) map[string]interface{} {
	return map[string]interface{}{
		"type":  "result",
		"class": "done",
		"payload": map[string]interface{}{
			"name":     name,
			"value":    value,
			"type":     varType,
			"numchild": strconv.Itoa(numChild),
		},
	}
}

func varUpdateRecord(changes ...map[string]interface{}) map[string]interface{} {
	changelist := make([]interface{}, 0, len(changes))
	for _, change := range changes {
		changelist = append(changelist, change)
	}
	return map[string]interface{}{
		"type":    "result",
		"class":   "done",
		"payload": map[string]interface{}{"changelist": changelist},
	}
}

func newResolverForTest(client *fakeMIClient) *VariableResolver {
	resolver := NewVariableResolver(client, NewGDBOutputUtil(), NewReferenceUtil())
	resolver.SetPseudoFrameHandle(0x200)
	return resolver
}

func TestResolveCreatesTrackedVariableOnce(t *testing.T) {
	client := newFakeMIClient()
	client.respond("var-create", varCreateRecord("g_count", "3", "int", 0))
	client.respond("var-update", varUpdateRecord(map[string]interface{}{
		"name": "g_count", "value": "4", "in_scope": "true",
	}))
	resolver := newResolverForTest(client)
	frame := FrameRef{ThreadID: 1, FrameID: 0}

	variable, err := resolver.Resolve(frame, "g_count", "g_count", 0)
	assert.NoError(t, err)
	assert.Equal(t, "g_count", variable.Name)
	assert.Equal(t, "3", variable.Value)
	assert.Equal(t, "int", variable.Type)
	assert.Equal(t, 0, variable.VariablesReference)

	// 第二次解析走var-update，不再var-create
	variable, err = resolver.Resolve(frame, "g_count", "g_count", 0)
	assert.NoError(t, err)
	assert.Equal(t, "4", variable.Value)
	assert.Equal(t, 1, client.countSent("var-create"))
	assert.Equal(t, 1, client.countSent("var-update"))
}

func TestResolveDistinctFrameIdentity(t *testing.T) {
	client := newFakeMIClient()
	client.respond("var-create", varCreateRecord("i", "1", "int", 0))
	client.respond("var-create", varCreateRecord("i", "2", "int", 0))
	resolver := newResolverForTest(client)

	// 同名变量在不同深度的栈帧里是不同的tracked变量
	_, err := resolver.Resolve(FrameRef{ThreadID: 1, FrameID: 0}, "i", "i", 3)
	assert.NoError(t, err)
	_, err = resolver.Resolve(FrameRef{ThreadID: 1, FrameID: 0}, "i", "i", 4)
	assert.NoError(t, err)
	assert.Equal(t, 2, client.countSent("var-create"))
}

func TestResolveKeepsStaleValueOutOfScope(t *testing.T) {
	client := newFakeMIClient()
	client.respond("var-create", varCreateRecord("counter", "7", "int", 0))
	client.respond("var-update", varUpdateRecord(map[string]interface{}{
		"name": "counter", "value": "", "in_scope": "false",
	}))
	resolver := newResolverForTest(client)
	frame := FrameRef{ThreadID: 1, FrameID: 0}

	_, err := resolver.Resolve(frame, "counter", "counter", 0)
	assert.NoError(t, err)

	// 越界时保留上一次的值
	variable, err := resolver.Resolve(frame, "counter", "counter", 0)
	assert.NoError(t, err)
	assert.Equal(t, "7", variable.Value)
}

func TestResolveUnknownValue(t *testing.T) {
	client := newFakeMIClient()
	client.respond("var-create", varCreateRecord("raw", "", "struct device", 0))
	resolver := newResolverForTest(client)

	variable, err := resolver.Resolve(FrameRef{ThreadID: 1, FrameID: 0}, "raw", "raw", 0)
	assert.NoError(t, err)
	assert.Equal(t, "<unknown>", variable.Value)
}

func TestResolveExpandableVariable(t *testing.T) {
	client := newFakeMIClient()
	client.respond("var-create", varCreateRecord("s", "{...}", "struct item", 2))
	resolver := newResolverForTest(client)

	variable, err := resolver.Resolve(FrameRef{ThreadID: 1, FrameID: 0}, "s", "s", 0)
	assert.NoError(t, err)
	assert.NotEqual(t, 0, variable.VariablesReference)
}

func TestResolveSanitizesBackendName(t *testing.T) {
	client := newFakeMIClient()
	client.respond("var-create", varCreateRecord("main_c_static_var_tick", "0", "int", 0))
	resolver := newResolverForTest(client)

	_, err := resolver.Resolve(FrameRef{ThreadID: 1, FrameID: 0},
		"main.c_static_var_tick", "tick", 2)
	assert.NoError(t, err)

	creates := client.sentArgs("var-create")
	assert.Len(t, creates, 1)
	// 展示名里的点归一成下划线，gdb才接受
	assert.Equal(t, "main_c_static_var_tick", creates[0][0])
}

func TestChildrenResolution(t *testing.T) {
	client := newFakeMIClient()
	children := []interface{}{
		map[string]interface{}{"child": map[string]interface{}{
			"name": "s.id", "exp": "id", "value": "1", "type": "int", "numchild": "0",
		}},
		map[string]interface{}{"child": map[string]interface{}{
			"name": "s.inner", "exp": "inner", "value": "{...}", "type": "struct inner", "numchild": "2",
		}},
	}
	client.respond("var-list-children", map[string]interface{}{
		"type":    "result",
		"class":   "done",
		"payload": map[string]interface{}{"numchild": "2", "children": children},
	})
	resolver := newResolverForTest(client)

	variables, err := resolver.Children(ObjectRef{FrameHandle: 0x200, VarName: "s"})
	assert.NoError(t, err)
	assert.Len(t, variables, 2)
	assert.Equal(t, "id", variables[0].Name)
	assert.Equal(t, "1", variables[0].Value)
	assert.Equal(t, 0, variables[0].VariablesReference)
	assert.Equal(t, "inner", variables[1].Name)
	assert.NotEqual(t, 0, variables[1].VariablesReference)
}

func TestResetClearsCache(t *testing.T) {
	client := newFakeMIClient()
	client.respond("var-create", varCreateRecord("x", "1", "int", 0))
	client.respond("var-create", varCreateRecord("x", "2", "int", 0))
	resolver := newResolverForTest(client)
	frame := FrameRef{ThreadID: 1, FrameID: 0}

	_, err := resolver.Resolve(frame, "x", "x", 0)
	assert.NoError(t, err)
	resolver.Reset()
	_, err = resolver.Resolve(frame, "x", "x", 0)
	assert.NoError(t, err)
	assert.Equal(t, 2, client.countSent("var-create"))
}
