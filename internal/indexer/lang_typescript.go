package indexer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/getmira/mira-core/pkg/models"
)

var jsBuiltins = map[string]bool{
	"console": true, "log": true, "error": true, "warn": true, "info": true,
	"setTimeout": true, "setInterval": true, "clearTimeout": true, "clearInterval": true,
	"parseInt": true, "parseFloat": true, "JSON": true, "Object": true, "Array": true,
	"String": true, "require": true, "import": true,
}

// TypeScriptParser parses TypeScript (and .tsx) source via tree-sitter.
type TypeScriptParser struct{}

func NewTypeScriptParser() *TypeScriptParser { return &TypeScriptParser{} }

func (p *TypeScriptParser) Language() string     { return "typescript" }
func (p *TypeScriptParser) Extensions() []string { return []string{"ts", "tsx"} }

func (p *TypeScriptParser) Parse(source []byte) (*ParseResult, error) {
	return parseECMAScript(source, typescript.GetLanguage(), "typescript")
}

// JavaScriptParser parses JavaScript source via tree-sitter. It shares
// the TypeScript walk logic (the original indexer's parsers were
// likewise one implementation tagged by language), minus TS-only node
// kinds like interface/type-alias declarations, which simply never
// appear in JS input.
type JavaScriptParser struct{}

func NewJavaScriptParser() *JavaScriptParser { return &JavaScriptParser{} }

func (p *JavaScriptParser) Language() string     { return "javascript" }
func (p *JavaScriptParser) Extensions() []string { return []string{"js", "jsx", "mjs", "cjs"} }

func (p *JavaScriptParser) Parse(source []byte) (*ParseResult, error) {
	return parseECMAScript(source, javascript.GetLanguage(), "javascript")
}

func parseECMAScript(source []byte, lang *sitter.Language, tag string) (*ParseResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(nil, nil, source)
	if err != nil {
		return nil, err
	}
	res := &ParseResult{}
	walkECMAScript(tree.RootNode(), source, res, "", "", tag)
	return res, nil
}

func walkECMAScript(n *sitter.Node, src []byte, res *ParseResult, parentName, currentFunc, lang string) {
	switch n.Type() {
	case "function_declaration", "method_definition", "arrow_function":
		sym := ecmaExtractFunction(n, src, parentName, lang)
		funcName := sym.QualifiedName
		res.Symbols = append(res.Symbols, sym)
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				walkECMAScript(body.NamedChild(i), src, res, parentName, funcName, lang)
			}
		}
		return
	case "class_declaration":
		sym := ecmaExtractClass(n, src, lang)
		if sym == nil {
			break
		}
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				walkECMAScript(body.NamedChild(i), src, res, sym.Name, currentFunc, lang)
			}
		}
		res.Symbols = append(res.Symbols, *sym)
		return
	case "interface_declaration":
		if sym := ecmaExtractInterface(n, src); sym != nil {
			res.Symbols = append(res.Symbols, *sym)
		}
	case "type_alias_declaration":
		if sym := ecmaExtractTypeAlias(n, src); sym != nil {
			res.Symbols = append(res.Symbols, *sym)
		}
	case "import_statement":
		if imp, ok := ecmaExtractImport(n, src); ok {
			res.Imports = append(res.Imports, imp)
		}
	case "call_expression":
		if currentFunc != "" {
			if call, ok := ecmaExtractCall(n, src, currentFunc); ok {
				res.Calls = append(res.Calls, call)
			}
		}
	case "export_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walkECMAScript(n.NamedChild(i), src, res, parentName, currentFunc, lang)
		}
		return
	case "variable_declaration", "lexical_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			declarator := n.NamedChild(i)
			if declarator.Type() != "variable_declarator" {
				continue
			}
			value := declarator.ChildByFieldName("value")
			nameNode := declarator.ChildByFieldName("name")
			if value == nil || nameNode == nil {
				continue
			}
			if value.Type() != "arrow_function" && value.Type() != "function" {
				continue
			}
			sym := ecmaExtractFunction(value, src, parentName, lang)
			sym.Name = nameNode.Content(src)
			sym.QualifiedName = sym.Name
			res.Symbols = append(res.Symbols, sym)
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		walkECMAScript(n.NamedChild(i), src, res, parentName, currentFunc, lang)
	}
}

func ecmaExtractFunction(n *sitter.Node, src []byte, parentName, lang string) RawSymbol {
	name := "<anonymous>"
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
	isAsync := strings.HasPrefix(n.Content(src), "async ") || strings.Contains(n.Content(src), "async ")
	symType := models.SymbolFunction
	if n.Type() == "method_definition" {
		symType = models.SymbolMethod
	}
	return RawSymbol{
		Name:          name,
		QualifiedName: qualified,
		SymbolType:    symType,
		Language:      lang,
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     signature,
		IsTest:        strings.HasPrefix(name, "test") || strings.Contains(name, "Test"),
		IsAsync:       isAsync,
	}
}

func ecmaExtractClass(n *sitter.Node, src []byte, lang string) *RawSymbol {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(src)
	return &RawSymbol{
		Name:          name,
		QualifiedName: name,
		SymbolType:    models.SymbolClass,
		Language:      lang,
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
	}
}

func ecmaExtractInterface(n *sitter.Node, src []byte) *RawSymbol {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(src)
	return &RawSymbol{
		Name:          name,
		QualifiedName: name,
		SymbolType:    models.SymbolInterface,
		Language:      "typescript",
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
	}
}

func ecmaExtractTypeAlias(n *sitter.Node, src []byte) *RawSymbol {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(src)
	return &RawSymbol{
		Name:          name,
		QualifiedName: name,
		SymbolType:    models.SymbolAlias,
		Language:      "typescript",
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
	}
}

func ecmaExtractImport(n *sitter.Node, src []byte) (RawImport, bool) {
	sourceNode := n.ChildByFieldName("source")
	if sourceNode == nil {
		return RawImport{}, false
	}
	path := strings.Trim(sourceNode.Content(src), `"'`)
	isExternal := !strings.HasPrefix(path, ".") && !strings.HasPrefix(path, "/")
	return RawImport{ImportPath: path, IsExternal: isExternal}, true
}

func ecmaExtractCall(n *sitter.Node, src []byte, caller string) (RawCall, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return RawCall{}, false
	}
	var callee string
	switch fn.Type() {
	case "identifier":
		callee = fn.Content(src)
	case "member_expression":
		prop := fn.ChildByFieldName("property")
		if prop == nil {
			return RawCall{}, false
		}
		callee = prop.Content(src)
	default:
		return RawCall{}, false
	}
	if jsBuiltins[callee] {
		return RawCall{}, false
	}
	return RawCall{CallerName: caller, CalleeName: callee, CallLine: int(n.StartPoint().Row) + 1}, true
}
