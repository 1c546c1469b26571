package parser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/standardbeagle/corels/internal/types"
)

// PythonParser wraps one tree-sitter parser instance per goroutine (the
// C-backed tree_sitter.Parser is not safe for concurrent Parse calls),
// following the teacher's per-language-parser pooling in
// internal/parser/parser.go, generalized to a sync.Pool since this engine
// only ever loads the one grammar.
type PythonParser struct {
	pool sync.Pool
}

// NewPythonParser builds a Parser backed by tree-sitter's Python grammar.
func NewPythonParser() *PythonParser {
	lang := tree_sitter.NewLanguage(tree_sitter_python.Language())
	p := &PythonParser{}
	p.pool.New = func() any {
		ts := tree_sitter.NewParser()
		_ = ts.SetLanguage(lang)
		return ts
	}
	return p
}

func (p *PythonParser) Parse(path string, content []byte) (*Tree, error) {
	tsp := p.pool.Get().(*tree_sitter.Parser)
	defer p.pool.Put(tsp)

	tree := tsp.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter: failed to parse %s", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &walker{content: content}
	module := w.visitModule(root)
	return &Tree{Root: module, Diagnostics: w.diagnostics}, nil
}

type walker struct {
	content     []byte
	diagnostics []types.Diagnostic
}

func toRange(n *tree_sitter.Node) types.Range {
	start := n.StartPosition()
	end := n.EndPosition()
	return types.Range{
		Start: types.Position{Line: int(start.Row), Character: int(start.Column)},
		End:   types.Position{Line: int(end.Row), Character: int(end.Column)},
	}
}

func toBytes(n *tree_sitter.Node) types.ByteRange {
	return types.ByteRange{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (w *walker) text(n *tree_sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

// visitModule walks only the top level of the module body: the spec's
// Arch worker "walks a file's AST top-level", leaving nested statements
// (if/for/try bodies at module scope) to the owning construct's
// children, which feature handlers and ArchEval still traverse through
// Node.Children.
func (w *walker) visitModule(root *tree_sitter.Node) *Node {
	module := &Node{Kind: KindModule, Range: toRange(root), Bytes: toBytes(root)}
	if root.HasError() {
		w.diagnostics = append(w.diagnostics, types.Diagnostic{
			Range:    toRange(root),
			Severity: types.SeverityError,
			Source:   "syntax",
			Message:  "file contains syntax errors; arch results may be incomplete",
		})
	}
	module.Children = w.visitBody(root)
	return module
}

func (w *walker) visitBody(n *tree_sitter.Node) []*Node {
	var out []*Node
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if node := w.visitStatement(child); node != nil {
			out = append(out, node)
		}
	}
	return out
}

func (w *walker) visitStatement(n *tree_sitter.Node) *Node {
	switch n.Kind() {
	case "class_definition":
		return w.visitClass(n)
	case "function_definition":
		return w.visitFunction(n, false)
	case "decorated_definition":
		return w.visitDecorated(n)
	case "expression_statement":
		return w.visitExpressionStatement(n)
	case "import_statement":
		return w.visitImport(n)
	case "import_from_statement":
		return w.visitImportFrom(n)
	case "if_statement", "try_statement", "with_statement", "for_statement", "while_statement":
		// Conditionally-declared symbols (a very common framework idiom,
		// e.g. `try: import simplejson as json except ImportError: ...`)
		// still contribute declarations; recurse into every block body.
		block := &Node{Kind: KindOther, Range: toRange(n), Bytes: toBytes(n)}
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			child := n.Child(i)
			if child != nil && child.Kind() == "block" {
				block.Children = append(block.Children, w.visitBody(child)...)
			}
		}
		if len(block.Children) == 0 {
			return nil
		}
		return block
	default:
		return nil
	}
}

func (w *walker) visitDecorated(n *tree_sitter.Node) *Node {
	var decorators []string
	var defNode *tree_sitter.Node
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "decorator":
			decorators = append(decorators, w.text(child))
		case "function_definition":
			defNode = child
		case "class_definition":
			defNode = child
		}
	}
	if defNode == nil {
		return nil
	}
	var node *Node
	if defNode.Kind() == "class_definition" {
		node = w.visitClass(defNode)
	} else {
		node = w.visitFunction(defNode, false)
	}
	if node == nil {
		return nil
	}
	node.Decorators = decorators
	for _, d := range decorators {
		switch d {
		case "@staticmethod", "@classmethod":
			node.IsStatic = true
		case "@property":
			node.IsProperty = true
		}
	}
	return node
}

func (w *walker) visitClass(n *tree_sitter.Node) *Node {
	nameNode := n.ChildByFieldName("name")
	node := &Node{Kind: KindClassDef, Range: toRange(n), Bytes: toBytes(n)}
	if nameNode != nil {
		node.Name = w.text(nameNode)
	}
	if argList := n.ChildByFieldName("superclasses"); argList != nil {
		count := argList.ChildCount()
		for i := uint(0); i < count; i++ {
			child := argList.Child(i)
			if child == nil {
				continue
			}
			switch child.Kind() {
			case "identifier", "attribute":
				node.Bases = append(node.Bases, w.text(child))
			case "keyword_argument":
				// e.g. `class Foo(Bar, metaclass=Meta)`: the metaclass
				// keyword argument is not an inheritance edge.
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		node.Children = w.visitClassBody(body)
	}
	return node
}

func (w *walker) visitClassBody(n *tree_sitter.Node) []*Node {
	var out []*Node
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_definition":
			out = append(out, w.visitFunction(child, true))
		case "decorated_definition":
			if node := w.visitDecorated(child); node != nil {
				out = append(out, node)
			}
		case "expression_statement":
			if node := w.visitExpressionStatement(child); node != nil {
				out = append(out, node)
			}
		}
	}
	return out
}

func (w *walker) visitFunction(n *tree_sitter.Node, isMethod bool) *Node {
	nameNode := n.ChildByFieldName("name")
	node := &Node{Kind: KindFunctionDef, Range: toRange(n), Bytes: toBytes(n)}
	if nameNode != nil {
		node.Name = w.text(nameNode)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		count := params.ChildCount()
		for i := uint(0); i < count; i++ {
			child := params.Child(i)
			if child == nil {
				continue
			}
			switch child.Kind() {
			case "identifier":
				name := w.text(child)
				if isMethod && len(node.Params) == 0 && (name == "self" || name == "cls") {
					continue
				}
				node.Params = append(node.Params, Param{Name: name})
			case "default_parameter", "typed_default_parameter":
				if nn := child.ChildByFieldName("name"); nn != nil {
					node.Params = append(node.Params, Param{Name: w.text(nn), Default: true})
				}
			case "typed_parameter":
				if nn := child.Child(0); nn != nil && nn.Kind() == "identifier" {
					node.Params = append(node.Params, Param{Name: w.text(nn)})
				}
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		node.Children = w.visitBody(body)
	}
	return node
}

func (w *walker) visitExpressionStatement(n *tree_sitter.Node) *Node {
	if n.ChildCount() == 0 {
		return nil
	}
	expr := n.Child(0)
	if expr == nil {
		return nil
	}
	switch expr.Kind() {
	case "assignment":
		return w.visitAssignment(expr)
	default:
		return nil
	}
}

func (w *walker) visitAssignment(n *tree_sitter.Node) *Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || left.Kind() != "identifier" {
		return nil // tuple/attribute targets aren't tracked as Variable symbols
	}
	node := &Node{Kind: KindAssignment, Range: toRange(n), Bytes: toBytes(n), Name: w.text(left)}
	if right != nil {
		w.classifyValue(node, right)
	}
	return node
}

func (w *walker) classifyValue(node *Node, right *tree_sitter.Node) {
	switch right.Kind() {
	case "integer", "float":
		node.ValueKind = ValueConstNumber
		node.ValueText = w.text(right)
	case "string":
		node.ValueKind = ValueConstString
		node.ValueText = w.text(right)
	case "true", "false":
		node.ValueKind = ValueConstBool
		node.ValueText = w.text(right)
	case "none":
		node.ValueKind = ValueConstNone
	case "identifier", "attribute":
		node.ValueKind = ValueRefName
		node.ValueRef = w.text(right)
	case "call":
		node.ValueKind = ValueCall
		if fn := right.ChildByFieldName("function"); fn != nil {
			node.ValueRef = w.text(fn)
		}
	case "list", "dictionary", "tuple", "set":
		node.ValueKind = ValueContainer
	default:
		node.ValueKind = ValueUnknown
	}
}

func (w *walker) visitImport(n *tree_sitter.Node) *Node {
	node := &Node{Kind: KindImport, Range: toRange(n), Bytes: toBytes(n)}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			node.Aliases = append(node.Aliases, ImportAlias{Name: w.text(child), Range: toRange(child)})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil {
				a := ImportAlias{Name: w.text(name), Range: toRange(child)}
				if alias != nil {
					a.Alias = w.text(alias)
				}
				node.Aliases = append(node.Aliases, a)
			}
		}
	}
	return node
}

func (w *walker) visitImportFrom(n *tree_sitter.Node) *Node {
	node := &Node{Kind: KindImportFrom, Range: toRange(n), Bytes: toBytes(n)}
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode != nil {
		node.FromModule = w.text(moduleNode)
	}
	// relative_import nodes hold the leading-dot count as literal "."
	// tokens; count them directly rather than via a field name, since
	// the grammar exposes them as anonymous import_prefix tokens.
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "relative_import":
			text := w.text(child)
			for _, r := range text {
				if r == '.' {
					node.Level++
				} else {
					break
				}
			}
		case "wildcard_import":
			node.Aliases = append(node.Aliases, ImportAlias{Name: "*", Range: toRange(child)})
		case "dotted_name", "identifier":
			if moduleNode != nil && child.StartByte() == moduleNode.StartByte() {
				continue
			}
			node.Aliases = append(node.Aliases, ImportAlias{Name: w.text(child), Range: toRange(child)})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil {
				a := ImportAlias{Name: w.text(name), Range: toRange(child)}
				if alias != nil {
					a.Alias = w.text(alias)
				}
				node.Aliases = append(node.Aliases, a)
			}
		}
	}
	return node
}
