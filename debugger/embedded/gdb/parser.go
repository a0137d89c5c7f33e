package gdb

import (
	"fmt"
	"strings"
)

// ParseRecord turns one MI output line into a record map and the command
// token it answers, if any. Result and async records become
// {"type", "class", "payload"}; stream records become {"type", "payload"}.
// Lines that are not MI records yield nil.
func ParseRecord(line string) (map[string]interface{}, string) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	token := line[:i]
	if i >= len(line) {
		return nil, ""
	}
	rest := line[i+1:]
	switch line[i] {
	case '^':
		return parseClassRecord("result", rest), token
	case '*':
		return parseClassRecord("exec", rest), token
	case '+':
		return parseClassRecord("status", rest), token
	case '=':
		return parseClassRecord("notify", rest), token
	case '~', '@', '&':
		types := map[byte]string{'~': "console", '@': "target", '&': "log"}
		p := &parser{input: rest}
		payload, err := p.parseCString()
		if err != nil {
			return nil, ""
		}
		return map[string]interface{}{"type": types[line[i]], "payload": payload}, ""
	}
	return nil, ""
}

func parseClassRecord(recordType string, rest string) map[string]interface{} {
	record := map[string]interface{}{"type": recordType}
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		record["class"] = rest
		return record
	}
	record["class"] = rest[:comma]
	p := &parser{input: rest[comma+1:]}
	payload, err := p.parseResults(0)
	if err != nil {
		return record
	}
	record["payload"] = payload
	return record
}

type parser struct {
	input string
	pos   int
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

// parseResults reads a comma-separated "name=value" sequence up to the end
// delimiter (0 means end of input).
func (p *parser) parseResults(end byte) (map[string]interface{}, error) {
	results := map[string]interface{}{}
	for {
		c, ok := p.peek()
		if !ok || c == end {
			return results, nil
		}
		name, value, err := p.parseResult()
		if err != nil {
			return nil, err
		}
		results[name] = value
		if c, ok = p.peek(); ok && c == ',' {
			p.pos++
		}
	}
}

func (p *parser) parseResult() (string, interface{}, error) {
	eq := strings.IndexByte(p.input[p.pos:], '=')
	if eq < 0 {
		return "", nil, fmt.Errorf("malformed result at %d", p.pos)
	}
	name := p.input[p.pos : p.pos+eq]
	p.pos += eq + 1
	value, err := p.parseValue()
	return name, value, err
}

func (p *parser) parseValue() (interface{}, error) {
	c, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of record")
	}
	switch c {
	case '"':
		return p.parseCString()
	case '{':
		p.pos++
		value, err := p.parseResults('}')
		if err != nil {
			return nil, err
		}
		p.pos++ // '}'
		return value, nil
	case '[':
		return p.parseList()
	}
	return nil, fmt.Errorf("unexpected character %q at %d", c, p.pos)
}

// parseList reads a list of values or of results. A result element is
// wrapped into a single-pair map so lists stay []interface{} throughout.
func (p *parser) parseList() ([]interface{}, error) {
	p.pos++ // '['
	list := []interface{}{}
	for {
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated list")
		}
		if c == ']' {
			p.pos++
			return list, nil
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == '"' || c == '{' || c == '[' {
			value, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			list = append(list, value)
			continue
		}
		name, value, err := p.parseResult()
		if err != nil {
			return nil, err
		}
		list = append(list, map[string]interface{}{name: value})
	}
}

// parseCString reads a double-quoted string with backslash escapes.
func (p *parser) parseCString() (string, error) {
	c, ok := p.peek()
	if !ok || c != '"' {
		return "", fmt.Errorf("expected string at %d", p.pos)
	}
	p.pos++
	var b strings.Builder
	for p.pos < len(p.input) {
		c = p.input[p.pos]
		p.pos++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.input) {
				return "", fmt.Errorf("unterminated escape")
			}
			e := p.input[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("unterminated string")
}
