package gdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResultRecord(t *testing.T) {
	record, token := ParseRecord(`4^done,bkpt={number="1",file="main.c",line="10"}`)
	assert.Equal(t, "4", token)
	assert.Equal(t, "result", record["type"])
	assert.Equal(t, "done", record["class"])
	payload := record["payload"].(map[string]interface{})
	bkpt := payload["bkpt"].(map[string]interface{})
	assert.Equal(t, "1", bkpt["number"])
	assert.Equal(t, "main.c", bkpt["file"])
	assert.Equal(t, "10", bkpt["line"])
}

func TestParseResultRecordWithoutPayload(t *testing.T) {
	record, token := ParseRecord(`^running`)
	assert.Equal(t, "", token)
	assert.Equal(t, "result", record["type"])
	assert.Equal(t, "running", record["class"])
	_, ok := record["payload"]
	assert.False(t, ok)
}

func TestParseExecRecord(t *testing.T) {
	record, token := ParseRecord(`*stopped,reason="breakpoint-hit",bkptno="1",thread-id="1",stopped-threads="all"`)
	assert.Equal(t, "", token)
	assert.Equal(t, "exec", record["type"])
	assert.Equal(t, "stopped", record["class"])
	payload := record["payload"].(map[string]interface{})
	assert.Equal(t, "breakpoint-hit", payload["reason"])
	assert.Equal(t, "all", payload["stopped-threads"])
}

func TestParseNotifyRecord(t *testing.T) {
	record, _ := ParseRecord(`=breakpoint-modified,bkpt={number="2",line="20"}`)
	assert.Equal(t, "notify", record["type"])
	assert.Equal(t, "breakpoint-modified", record["class"])
}

func TestParseStatusRecord(t *testing.T) {
	record, _ := ParseRecord(`+download,{section=".text",total-sent="512",total-size="1024"}`)
	assert.Equal(t, "status", record["type"])
	assert.Equal(t, "download", record["class"])
}

func TestParseStreamRecords(t *testing.T) {
	record, _ := ParseRecord(`~"Hello, world!\n"`)
	assert.Equal(t, "console", record["type"])
	assert.Equal(t, "Hello, world!\n", record["payload"])

	record, _ = ParseRecord(`&"warning: something\n"`)
	assert.Equal(t, "log", record["type"])

	record, _ = ParseRecord(`@"target output"`)
	assert.Equal(t, "target", record["type"])
}

func TestParseListOfResults(t *testing.T) {
	record, _ := ParseRecord(`^done,stack=[frame={level="0",func="main"},frame={level="1",func="_start"}]`)
	payload := record["payload"].(map[string]interface{})
	stack := payload["stack"].([]interface{})
	assert.Len(t, stack, 2)
	first := stack[0].(map[string]interface{})["frame"].(map[string]interface{})
	assert.Equal(t, "0", first["level"])
	assert.Equal(t, "main", first["func"])
}

func TestParseListOfValues(t *testing.T) {
	record, _ := ParseRecord(`^done,ids=["1","2","3"]`)
	payload := record["payload"].(map[string]interface{})
	ids := payload["ids"].([]interface{})
	assert.Equal(t, []interface{}{"1", "2", "3"}, ids)
}

func TestParseStringEscapes(t *testing.T) {
	record, _ := ParseRecord(`^done,value="a \"quoted\" string\twith\nescapes"`)
	payload := record["payload"].(map[string]interface{})
	assert.Equal(t, "a \"quoted\" string\twith\nescapes", payload["value"])
}

func TestParseNonRecordLines(t *testing.T) {
	record, _ := ParseRecord(`(gdb) `)
	assert.Nil(t, record)
	record, _ = ParseRecord(``)
	assert.Nil(t, record)
}
