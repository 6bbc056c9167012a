package indexer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/getmira/mira-core/pkg/models"
)

// pythonBuiltins is skipped when resolving call sites, mirroring the
// original indexer's noise filter so trivial stdlib calls don't pollute
// the call graph.
var pythonBuiltins = map[string]bool{
	"print": true, "len": true, "str": true, "int": true, "float": true,
	"list": true, "dict": true, "set": true, "tuple": true, "range": true,
	"enumerate": true, "zip": true, "open": true, "type": true,
	"isinstance": true, "hasattr": true, "getattr": true, "setattr": true,
	"super": true, "sorted": true, "reversed": true, "map": true,
	"filter": true, "any": true, "all": true,
}

// PythonParser parses Python source via tree-sitter.
type PythonParser struct{}

// NewPythonParser returns a ready-to-use Python parser.
func NewPythonParser() *PythonParser { return &PythonParser{} }

func (p *PythonParser) Language() string     { return "python" }
func (p *PythonParser) Extensions() []string { return []string{"py", "pyi"} }

func (p *PythonParser) Parse(source []byte) (*ParseResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(nil, nil, source)
	if err != nil {
		return nil, err
	}

	res := &ParseResult{}
	walkPython(tree.RootNode(), source, res, "", "")
	return res, nil
}

func walkPython(n *sitter.Node, src []byte, res *ParseResult, parentName, currentFunc string) {
	switch n.Type() {
	case "function_definition":
		sym := pythonExtractFunction(n, src, parentName)
		funcName := sym.QualifiedName
		res.Symbols = append(res.Symbols, sym)
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				walkPython(body.NamedChild(i), src, res, parentName, funcName)
			}
		}
		return
	case "class_definition":
		sym := pythonExtractClass(n, src)
		res.Symbols = append(res.Symbols, sym)
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				walkPython(body.NamedChild(i), src, res, sym.Name, currentFunc)
			}
		}
		return
	case "import_statement", "import_from_statement":
		if imp, ok := pythonExtractImport(n, src); ok {
			res.Imports = append(res.Imports, imp)
		}
	case "call":
		if currentFunc != "" {
			if call, ok := pythonExtractCall(n, src, currentFunc); ok {
				res.Calls = append(res.Calls, call)
			}
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		walkPython(n.NamedChild(i), src, res, parentName, currentFunc)
	}
}

func pythonExtractFunction(n *sitter.Node, src []byte, parentName string) RawSymbol {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}
	qualified := name
	if parentName != "" {
		qualified = parentName + "." + name
	}
	signature := ""
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature = params.Content(src)
	}
	isAsync := strings.HasPrefix(n.Content(src), "async ")
	return RawSymbol{
		Name:          name,
		QualifiedName: qualified,
		SymbolType:    models.SymbolFunction,
		Language:      "python",
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     signature,
		IsTest:        strings.HasPrefix(name, "test_") || strings.HasPrefix(name, "test"),
		IsAsync:       isAsync,
	}
}

func pythonExtractClass(n *sitter.Node, src []byte) RawSymbol {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}
	signature := ""
	if super := n.ChildByFieldName("superclasses"); super != nil {
		signature = super.Content(src)
	}
	return RawSymbol{
		Name:          name,
		QualifiedName: name,
		SymbolType:    models.SymbolClass,
		Language:      "python",
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     signature,
	}
}

func pythonExtractImport(n *sitter.Node, src []byte) (RawImport, bool) {
	var path string
	if n.Type() == "import_from_statement" {
		moduleNode := n.ChildByFieldName("module_name")
		if moduleNode == nil {
			return RawImport{}, false
		}
		path = moduleNode.Content(src)
	} else {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "dotted_name" {
				path = c.Content(src)
				break
			}
		}
		if path == "" {
			return RawImport{}, false
		}
	}
	return RawImport{ImportPath: path, IsExternal: !strings.HasPrefix(path, ".")}, true
}

func pythonExtractCall(n *sitter.Node, src []byte, caller string) (RawCall, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return RawCall{}, false
	}
	var callee string
	switch fn.Type() {
	case "identifier":
		callee = fn.Content(src)
	case "attribute":
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return RawCall{}, false
		}
		callee = attr.Content(src)
	default:
		return RawCall{}, false
	}
	if pythonBuiltins[callee] {
		return RawCall{}, false
	}
	return RawCall{CallerName: caller, CalleeName: callee, CallLine: int(n.StartPoint().Row) + 1}, true
}
