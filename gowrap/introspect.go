package gowrap

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/tools/go/packages"
)

// LispPath is the import path of the bridge package.
const LispPath = "github.com/krobelus/remacs/lisp"

const directive = "//remacs:defun"

// IntrospectPackage loads the package matching pattern, relative to dir,
// and returns its //remacs:defun functions in source order.
func IntrospectPackage(pattern, dir string) (*PackageModel, error) {
	// A stale generated file must not keep the package from loading, so
	// it is blanked out with an overlay.
	named, err := packages.Load(&packages.Config{Mode: packages.NeedName | packages.NeedFiles, Dir: dir}, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	overlay := make(map[string][]byte)
	for _, p := range named {
		for _, f := range p.GoFiles {
			if filepath.Base(f) == exportsFileName {
				overlay[f] = []byte("package " + p.Name + "\n")
			}
		}
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedTypes |
			packages.NeedSyntax | packages.NeedTypesInfo,
		Dir:     dir,
		Overlay: overlay,
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", pattern)
	}
	if len(pkgs) > 1 {
		return nil, fmt.Errorf("%s matches %d packages, want one", pattern, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkg.Errors)
	}
	if pkg.Types == nil || pkg.TypesInfo == nil {
		return nil, fmt.Errorf("type information not available for %s", pattern)
	}

	model := &PackageModel{
		ImportPath: pkg.PkgPath,
		Name:       pkg.Name,
	}
	if len(pkg.GoFiles) > 0 {
		model.Dir = filepath.Dir(pkg.GoFiles[0])
	}

	seen := make(map[string]token.Position)
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Doc == nil {
				continue
			}
			line, ok := findDirective(fd.Doc)
			if !ok {
				continue
			}
			pos := pkg.Fset.Position(fd.Pos())
			fn, err := extractFunction(fd, line, pkg.TypesInfo)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pos, err)
			}
			if prev, dup := seen[fn.LispName]; dup {
				return nil, fmt.Errorf("%s: %s already defined at %s", pos, fn.LispName, prev)
			}
			seen[fn.LispName] = pos
			model.Functions = append(model.Functions, *fn)
		}
	}
	return model, nil
}

func findDirective(doc *ast.CommentGroup) (string, bool) {
	for _, c := range doc.List {
		if c.Text == directive || strings.HasPrefix(c.Text, directive+" ") {
			return strings.TrimSpace(strings.TrimPrefix(c.Text, directive)), true
		}
	}
	return "", false
}

// parseDirective splits key=value pairs. Values may be Go-quoted.
func parseDirective(s string) (map[string]string, error) {
	out := make(map[string]string)
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed directive option %q", s)
		}
		key := s[:eq]
		if strings.ContainsFunc(key, unicode.IsSpace) {
			return nil, fmt.Errorf("malformed directive option %q", s)
		}
		rest := s[eq+1:]

		var val string
		if strings.HasPrefix(rest, `"`) {
			q, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, fmt.Errorf("option %s: %w", key, err)
			}
			val, _ = strconv.Unquote(q)
			rest = rest[len(q):]
		} else {
			end := strings.IndexFunc(rest, unicode.IsSpace)
			if end < 0 {
				end = len(rest)
			}
			val, rest = rest[:end], rest[end:]
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("option %s given twice", key)
		}
		out[key] = val
		s = rest
	}
	return out, nil
}

func extractFunction(fd *ast.FuncDecl, line string, info *types.Info) (*FunctionModel, error) {
	if fd.Recv != nil {
		return nil, fmt.Errorf("%s: methods cannot be exported", fd.Name.Name)
	}
	if !fd.Name.IsExported() {
		return nil, fmt.Errorf("%s: exported function must be exported from Go too", fd.Name.Name)
	}
	obj, ok := info.Defs[fd.Name].(*types.Func)
	if !ok {
		return nil, fmt.Errorf("%s: no type information", fd.Name.Name)
	}
	sig := obj.Type().(*types.Signature)
	if sig.TypeParams().Len() > 0 {
		return nil, fmt.Errorf("%s: generic functions cannot be exported", fd.Name.Name)
	}

	opts, err := parseDirective(line)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fd.Name.Name, err)
	}

	fn := &FunctionModel{
		GoName:   fd.Name.Name,
		LispName: GoNameToLispName(fd.Name.Name),
		Doc:      strings.TrimSpace(fd.Doc.Text()),
	}

	params := sig.Params()
	first := 0
	if params.Len() > 0 && isLispType(params.At(0).Type(), "Env", true) {
		fn.TakesEnv = true
		first = 1
	}
	for i := first; i < params.Len(); i++ {
		p := params.At(i)
		t := p.Type()
		variadic := sig.Variadic() && i == params.Len()-1
		if variadic {
			t = t.(*types.Slice).Elem()
		}
		key, ok := typeKey(t)
		if !ok {
			return nil, fmt.Errorf("%s: parameter %s has unsupported type %s", fn.GoName, p.Name(), t)
		}
		if p.Name() == "" || p.Name() == "_" {
			return nil, fmt.Errorf("%s: parameter %d needs a name", fn.GoName, i)
		}
		pm := ParamModel{GoName: p.Name(), LispName: GoNameToLispName(p.Name()), Type: key}
		if variadic {
			fn.Rest = &pm
		} else {
			fn.Params = append(fn.Params, pm)
		}
	}
	fn.MinArgs = len(fn.Params)

	results := sig.Results()
	n := results.Len()
	if n > 0 && isErrorType(results.At(n-1).Type()) {
		fn.ReturnsErr = true
		n--
	}
	switch n {
	case 0:
	case 1:
		key, ok := typeKey(results.At(0).Type())
		if !ok {
			return nil, fmt.Errorf("%s: unsupported result type %s", fn.GoName, results.At(0).Type())
		}
		fn.Result = key
	default:
		return nil, fmt.Errorf("%s: at most one value and an error may be returned", fn.GoName)
	}

	for key, val := range opts {
		switch key {
		case "name":
			if val == "" {
				return nil, fmt.Errorf("%s: empty name", fn.GoName)
			}
			fn.LispName = val
		case "min":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 || n > len(fn.Params) {
				return nil, fmt.Errorf("%s: min=%s is not in 0..%d", fn.GoName, val, len(fn.Params))
			}
			fn.MinArgs = n
		case "intspec":
			spec := val
			fn.IntSpec = &spec
		default:
			return nil, fmt.Errorf("%s: unknown option %s", fn.GoName, key)
		}
	}
	return fn, nil
}

// typeKeys maps Go types to the projections that carry them.
var typeKeys = map[string]string{
	LispPath + ".Object":           "Any",
	"string":                       "String",
	"int64":                        "Fixnum",
	"float64":                      "Float",
	"bool":                         "Bool",
	"rune":                         "Char",
	"int32":                        "Char",
	"[]byte":                       "Bytes",
	"[]uint8":                      "Bytes",
	"*math/big.Int":                "Integer",
	LispPath + ".SymbolRef":        "Symbol",
	"[]" + LispPath + ".Object":    "List",
	"*" + LispPath + ".StringView": "Strings",
	"*" + LispPath + ".VectorView": "Vector",
}

func typeKey(t types.Type) (string, bool) {
	key, ok := typeKeys[types.TypeString(t, nil)]
	return key, ok
}

func isLispType(t types.Type, name string, pointer bool) bool {
	if pointer {
		p, ok := t.(*types.Pointer)
		if !ok {
			return false
		}
		t = p.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Name() == name && obj.Pkg() != nil && obj.Pkg().Path() == LispPath
}

func isErrorType(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}
