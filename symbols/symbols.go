package symbols

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fansqz/embedded-debugger/constants"
	"github.com/fansqz/embedded-debugger/debugger"
	"github.com/sirupsen/logrus"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// SourceSymbolTable 基于源码静态分析的符号表
// 解析源文件的顶层变量声明，static限定的按文件归为静态变量，其余为全局变量
type SourceSymbolTable struct {
	mutex   sync.RWMutex
	globals []debugger.Symbol
	statics map[string][]debugger.Symbol
}

// NewSourceSymbolTable 解析files中所有源文件，解析失败的文件跳过
func NewSourceSymbolTable(files []string) *SourceSymbolTable {
	table := &SourceSymbolTable{
		statics: map[string][]debugger.Symbol{},
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logrus.Warnf("[symbols] read %s fail, err = %v", file, err)
			continue
		}
		if err = table.AnalyzeSource(file, content); err != nil {
			logrus.Warnf("[symbols] analyze %s fail, err = %v", file, err)
		}
	}
	return table
}

// GetGlobalVariables 获取全局变量符号列表
func (t *SourceSymbolTable) GetGlobalVariables() ([]debugger.Symbol, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	answer := make([]debugger.Symbol, len(t.globals))
	copy(answer, t.globals)
	return answer, nil
}

// GetStaticVariables 获取file文件内静态变量符号列表，按文件base名匹配
func (t *SourceSymbolTable) GetStaticVariables(file string) ([]debugger.Symbol, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	statics := t.statics[filepath.Base(file)]
	answer := make([]debugger.Symbol, len(statics))
	copy(answer, statics)
	return answer, nil
}

// AnalyzeSource 解析一个源文件的顶层声明
func (t *SourceSymbolTable) AnalyzeSource(file string, content []byte) error {
	parser := sitter.NewParser()
	switch languageByExtension(file) {
	case constants.LanguageCpp:
		parser.SetLanguage(cpp.GetLanguage())
	default:
		parser.SetLanguage(c.GetLanguage())
	}
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return err
	}

	base := filepath.Base(file)
	rootNode := tree.RootNode()
	for i := 0; i < int(rootNode.NamedChildCount()); i++ {
		node := rootNode.NamedChild(i)
		if node.Type() != "declaration" {
			continue
		}
		names := declarationNames(node, content)
		if len(names) == 0 {
			continue
		}
		static := hasStaticSpecifier(node, content)
		t.mutex.Lock()
		for _, name := range names {
			symbol := debugger.Symbol{Name: name, File: base}
			if static {
				t.statics[base] = append(t.statics[base], symbol)
			} else {
				t.globals = append(t.globals, symbol)
			}
		}
		t.mutex.Unlock()
	}
	return nil
}

func languageByExtension(file string) constants.LanguageType {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".cpp", ".cc", ".cxx", ".hpp":
		return constants.LanguageCpp
	default:
		return constants.LanguageC
	}
}

// hasStaticSpecifier 声明是否带static存储限定
func hasStaticSpecifier(node *sitter.Node, content []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "storage_class_specifier" && child.Content(content) == "static" {
			return true
		}
	}
	return false
}

// declarationNames 提取一条声明中的变量名，函数原型不算变量
func declarationNames(node *sitter.Node, content []byte) []string {
	names := []string{}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "init_declarator":
			declarator := child.ChildByFieldName("declarator")
			if name := declaratorName(declarator, content); name != "" {
				names = append(names, name)
			}
		case "identifier", "pointer_declarator", "array_declarator":
			if name := declaratorName(child, content); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// declaratorName 递归下钻declarator找到变量标识符
func declaratorName(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "identifier":
		return node.Content(content)
	case "function_declarator":
		return ""
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if name := declaratorName(node.NamedChild(i), content); name != "" {
			return name
		}
	}
	return ""
}
