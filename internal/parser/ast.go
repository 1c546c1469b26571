// Package parser is the pluggable AST boundary the spec keeps out of the
// engine core: it owns syntax parsing and hands the core a Tree of Nodes
// with source ranges. The shipped Parser implementation parses the
// target scripting language (Python syntax) using tree-sitter, but
// nothing in internal/arena, internal/stages, or internal/importresolver
// imports tree-sitter directly — they only see *parser.Tree.
package parser

import "github.com/standardbeagle/corels/internal/types"

// Kind classifies a Node the way the Arch stage worker needs to
// distinguish declarations from plain expressions.
type Kind uint8

const (
	KindModule Kind = iota
	KindClassDef
	KindFunctionDef
	KindAssignment
	KindImport     // "import a.b.c [as d]"
	KindImportFrom // "from X import a, b as c" / "from . import y"
	KindExpr
	KindOther
)

// Param is one parameter of a FunctionDef node.
type Param struct {
	Name    string
	Default bool
}

// ImportAlias is one name in an import statement's alias list.
type ImportAlias struct {
	Name  string // "*" for a wildcard import
	Alias string // empty if not aliased
	Range types.Range
}

// Node is a generic syntax-tree node with the attributes stage workers
// need already extracted: declaration shape, not raw token text, except
// where the source text itself is the payload (e.g. a string literal).
type Node struct {
	Kind  Kind
	Range types.Range
	Bytes types.ByteRange

	Name       string   // declared name for ClassDef/FunctionDef/Assignment target
	Bases      []string // dotted base-class names, ClassDef only
	Decorators []string
	Params     []Param // FunctionDef only
	IsStatic   bool
	IsProperty bool

	// Import-specific fields.
	FromModule string        // dotted from-clause, ImportFrom only
	Level      int           // leading-dot count, ImportFrom only
	Aliases    []ImportAlias // ImportFrom: names after "import"; Import: dotted module paths

	// Assignment-specific: a coarse classification of the right-hand
	// side, enough for ArchEval's constant folding.
	ValueKind  ValueKind
	ValueText  string // literal text for ValueConst
	ValueRef   string // dotted name for ValueRef

	Children []*Node
}

type ValueKind uint8

const (
	ValueUnknown ValueKind = iota
	ValueConstNumber
	ValueConstString
	ValueConstBool
	ValueConstNone
	ValueRefName
	ValueCall
	ValueContainer
)

// Tree is the parsed result for one file.
type Tree struct {
	Root        *Node
	Diagnostics []types.Diagnostic
}

// Parser parses one file's content into a Tree. Implementations must be
// safe to call concurrently on distinct files — the Scheduler runs arch
// work from a pool of goroutines.
type Parser interface {
	Parse(path string, content []byte) (*Tree, error)
}
