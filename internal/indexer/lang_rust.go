package indexer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/getmira/mira-core/pkg/models"
)

// RustParser parses Rust source via tree-sitter.
type RustParser struct{}

func NewRustParser() *RustParser { return &RustParser{} }

func (p *RustParser) Language() string     { return "rust" }
func (p *RustParser) Extensions() []string { return []string{"rs"} }

func (p *RustParser) Parse(source []byte) (*ParseResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	tree, err := parser.ParseCtx(nil, nil, source)
	if err != nil {
		return nil, err
	}
	res := &ParseResult{}
	walkRust(tree.RootNode(), source, res, "", "")
	return res, nil
}

func walkRust(n *sitter.Node, src []byte, res *ParseResult, implType, currentFunc string) {
	switch n.Type() {
	case "function_item":
		sym := rustExtractFunction(n, src, implType)
		funcName := sym.QualifiedName
		res.Symbols = append(res.Symbols, sym)
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				walkRust(body.NamedChild(i), src, res, implType, funcName)
			}
		}
		return
	case "struct_item":
		res.Symbols = append(res.Symbols, rustExtractTyped(n, src, models.SymbolStruct))
	case "enum_item":
		res.Symbols = append(res.Symbols, rustExtractTyped(n, src, models.SymbolEnum))
	case "trait_item":
		res.Symbols = append(res.Symbols, rustExtractTyped(n, src, models.SymbolInterface))
	case "type_item":
		res.Symbols = append(res.Symbols, rustExtractTyped(n, src, models.SymbolAlias))
	case "mod_item":
		res.Symbols = append(res.Symbols, rustExtractTyped(n, src, models.SymbolModule))
	case "impl_item":
		typeName := ""
		if t := n.ChildByFieldName("type"); t != nil {
			typeName = t.Content(src)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				walkRust(body.NamedChild(i), src, res, typeName, currentFunc)
			}
		}
		return
	case "use_declaration":
		if imp, ok := rustExtractUse(n, src); ok {
			res.Imports = append(res.Imports, imp)
		}
	case "call_expression":
		if currentFunc != "" {
			if call, ok := rustExtractCall(n, src, currentFunc); ok {
				res.Calls = append(res.Calls, call)
			}
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		walkRust(n.NamedChild(i), src, res, implType, currentFunc)
	}
}

func rustExtractFunction(n *sitter.Node, src []byte, implType string) RawSymbol {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}
	symType := models.SymbolFunction
	qualified := name
	if implType != "" {
		symType = models.SymbolMethod
		qualified = implType + "." + name
	}
	signature := ""
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature = params.Content(src)
	}
	visibility := ""
	if strings.HasPrefix(n.Content(src), "pub") {
		visibility = "pub"
	}
	isAsync := strings.Contains(n.Content(src)[:min(len(n.Content(src)), 32)], "async ")
	return RawSymbol{
		Name:          name,
		QualifiedName: qualified,
		SymbolType:    symType,
		Language:      "rust",
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     signature,
		Visibility:    visibility,
		IsTest:        hasAttribute(n, src, "test"),
		IsAsync:       isAsync,
	}
}

func rustExtractTyped(n *sitter.Node, src []byte, symType models.SymbolType) RawSymbol {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}
	visibility := ""
	if strings.HasPrefix(n.Content(src), "pub") {
		visibility = "pub"
	}
	return RawSymbol{
		Name:          name,
		QualifiedName: name,
		SymbolType:    symType,
		Language:      "rust",
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Visibility:    visibility,
	}
}

// hasAttribute does a textual scan of the node's leading siblings for
// a `#[<name>]` attribute, since tree-sitter attaches attribute_item
// nodes as preceding siblings rather than children.
func hasAttribute(n *sitter.Node, src []byte, name string) bool {
	prev := n.PrevNamedSibling()
	for prev != nil && prev.Type() == "attribute_item" {
		if strings.Contains(prev.Content(src), name) {
			return true
		}
		prev = prev.PrevNamedSibling()
	}
	return false
}

func rustExtractUse(n *sitter.Node, src []byte) (RawImport, bool) {
	argNode := n.ChildByFieldName("argument")
	if argNode == nil {
		return RawImport{}, false
	}
	path := argNode.Content(src)
	isExternal := !strings.HasPrefix(path, "crate::") && !strings.HasPrefix(path, "self::") && !strings.HasPrefix(path, "super::")
	return RawImport{ImportPath: path, IsExternal: isExternal}, true
}

func rustExtractCall(n *sitter.Node, src []byte, caller string) (RawCall, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return RawCall{}, false
	}
	var callee string
	switch fn.Type() {
	case "identifier":
		callee = fn.Content(src)
	case "field_expression":
		field := fn.ChildByFieldName("field")
		if field == nil {
			return RawCall{}, false
		}
		callee = field.Content(src)
	case "scoped_identifier":
		name := fn.ChildByFieldName("name")
		if name == nil {
			return RawCall{}, false
		}
		callee = name.Content(src)
	default:
		return RawCall{}, false
	}
	return RawCall{CallerName: caller, CalleeName: callee, CallLine: int(n.StartPoint().Row) + 1}, true
}
