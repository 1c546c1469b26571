package arena

import "github.com/standardbeagle/corels/internal/types"

// Kind is the symbol variant tag. Nine variants, per spec.md §3.
type Kind uint8

const (
	KindRoot Kind = iota
	KindNamespace
	KindDiskDir
	KindPackage
	KindFile
	KindCompiled
	KindClass
	KindFunction
	KindVariable
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindNamespace:
		return "namespace"
	case KindDiskDir:
		return "disk_dir"
	case KindPackage:
		return "package"
	case KindFile:
		return "file"
	case KindCompiled:
		return "compiled"
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	case KindVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// Stage is one of the four build phases.
type Stage int

const (
	StageArch Stage = iota
	StageArchEval
	StageFramework
	StageValidation
	StageCount
)

func (s Stage) String() string {
	switch s {
	case StageArch:
		return "arch"
	case StageArchEval:
		return "arch_eval"
	case StageFramework:
		return "framework"
	case StageValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Status is a symbol's build state at one stage.
type Status uint8

const (
	StatusPending Status = iota
	StatusInProgress
	StatusDone
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// RootData is the synthetic apex symbol's payload: the list of
// entry-point root handles it owns, mirrored in Children. AddChild
// appends to both lists, so EntryPointRoots is in insertion order, the
// same order as Children; it is not re-sorted by entry-point priority.
type RootData struct {
	EntryPointRoots []Handle
}

// NamespaceData: a dotted name with no file backing.
type NamespaceData struct{}

// DiskDirData: an un-parsed directory that may still become a Package
// or stay a Namespace once its contents are known.
type DiskDirData struct {
	Path string
}

// PackageData: a directory acting as a module.
type PackageData struct {
	Path     string
	InitFile types.FileID // 0 if the package has no __init__-equivalent file yet
}

// ImportName is one name (optionally aliased) bound by an import
// statement, "*" for a wildcard import. Range is the alias token's own
// source range, narrower than the owning ImportDecl's Range.
type ImportName struct {
	Name  string
	Alias string
	Range types.Range
}

// ImportDecl is one import statement recorded on a File during the Arch
// stage, resolved against the graph during ArchEval. Range spans the
// whole statement (the "from ... import ..." or "import ..." line),
// used to anchor an unresolved-import diagnostic to the from-line
// regardless of how narrow an individual alias token is.
type ImportDecl struct {
	Level      int
	FromModule string
	Names      []ImportName
	Range      types.Range
}

// FileData: a single source file that is a module.
type FileData struct {
	Path    string
	Imports []ImportDecl

	// ImportBindings maps the name each import statement bound into this
	// file's scope to the symbol it resolved to, populated during
	// ArchEval. Dotted base-class names are resolved by looking up their
	// first segment here before falling back to a same-file sibling.
	ImportBindings map[string]Handle
}

// CompiledData: a native/opaque module known by name only (stdlib stub,
// typeshed-style stub, or unresolved native extension).
type CompiledData struct {
	IsStub bool
}

// ClassData: a class declaration.
type ClassData struct {
	BaseNames  []string // unresolved dotted names, as written
	Bases      []Handle // resolved weak references, populated at ArchEval
	Decorators []string
	ModelNames []string // framework-model names this class contributes to, Framework stage
}

// FunctionData: a function/method declaration.
type FunctionData struct {
	Params     []string
	IsStatic   bool
	IsProperty bool
	BodyRange  types.ByteRange
}

// VariableData: a name binding.
type VariableData struct {
	Evaluations []Evaluation
}

// Symbol is the tagged-variant node. Exactly one of the Kind-named
// pointer fields below is non-nil, matching Symbol.Kind.
type Symbol struct {
	Handle Handle
	Kind   Kind
	Name   string

	Parent   Handle
	Children []Handle

	FileID   types.FileID
	Bytes    types.ByteRange
	Range    types.Range

	Status       [StageCount]Status
	Dependencies [StageCount][]Handle
	Dependents   [StageCount][]Handle

	Root      *RootData
	Namespace *NamespaceData
	DiskDir   *DiskDirData
	Package   *PackageData
	File      *FileData
	Compiled  *CompiledData
	Class     *ClassData
	Function  *FunctionData
	Variable  *VariableData

	mroCache []Handle
	mroValid bool
}

// QualifiedName is computed on demand by walking Parent via the owning
// Arena (Symbol itself doesn't know its ancestors' names).
