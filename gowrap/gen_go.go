package gowrap

import (
	"bytes"
	"fmt"

	"github.com/dave/jennifer/jen"
)

// goTypes gives the Go type for each type key.
var goTypes = map[string]func() *jen.Statement{
	"Any":     func() *jen.Statement { return jen.Qual(LispPath, "Object") },
	"String":  func() *jen.Statement { return jen.String() },
	"Fixnum":  func() *jen.Statement { return jen.Int64() },
	"Float":   func() *jen.Statement { return jen.Float64() },
	"Bool":    func() *jen.Statement { return jen.Bool() },
	"Char":    func() *jen.Statement { return jen.Rune() },
	"Bytes":   func() *jen.Statement { return jen.Index().Byte() },
	"Integer": func() *jen.Statement { return jen.Op("*").Qual("math/big", "Int") },
	"Symbol":  func() *jen.Statement { return jen.Qual(LispPath, "SymbolRef") },
	"List":    func() *jen.Statement { return jen.Index().Qual(LispPath, "Object") },
	"Strings": func() *jen.Statement { return jen.Op("*").Qual(LispPath, "StringView") },
	"Vector":  func() *jen.Statement { return jen.Op("*").Qual(LispPath, "VectorView") },
}

// GenerateGoGlue renders the registration file for model. The generated
// package exports Exports, returning fresh descriptors, and
// RegisterExports.
func GenerateGoGlue(model *PackageModel) (string, error) {
	f := jen.NewFilePathName(model.ImportPath, model.Name)
	f.HeaderComment("Code generated by remacs wrap. DO NOT EDIT.")
	f.ImportName(LispPath, "lisp")

	f.Comment("RegisterExports registers the package's primitives with reg.")
	f.Func().Id("RegisterExports").Params(jen.Id("reg").Op("*").Qual(LispPath, "Registry")).Error().Block(
		jen.For(jen.List(jen.Id("_"), jen.Id("d")).Op(":=").Range().Id("Exports").Call()).Block(
			jen.If(jen.Err().Op(":=").Id("reg").Dot("Register").Call(jen.Id("d")), jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Err()),
			),
		),
		jen.Return(jen.Nil()),
	)
	f.Line()

	var items []jen.Code
	for i := range model.Functions {
		d, err := descriptor(&model.Functions[i])
		if err != nil {
			return "", err
		}
		items = append(items, jen.Line().Add(d))
	}
	if len(items) > 0 {
		items = append(items, jen.Line())
	}

	f.Comment("Exports returns descriptors for the package's primitives.")
	f.Func().Id("Exports").Params().Index().Op("*").Qual(LispPath, "Descriptor").Block(
		jen.Return(jen.Index().Op("*").Qual(LispPath, "Descriptor").Values(items...)),
	)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return "", fmt.Errorf("rendering %s: %w", model.Name, err)
	}
	return buf.String(), nil
}

// descriptor renders the builder chain for one function.
func descriptor(fn *FunctionModel) (*jen.Statement, error) {
	s := jen.Qual(LispPath, "Defun").Call(jen.Lit(fn.LispName))
	if fn.Doc != "" {
		s.Dot("Doc").Call(jen.Lit(fn.Doc))
	}
	if fn.IntSpec != nil {
		s.Dot("Interactive").Call(jen.Lit(*fn.IntSpec))
	}

	var args []jen.Code
	if fn.TakesEnv {
		args = append(args, jen.Id("c").Dot("Env"))
	}
	for i, p := range fn.Params {
		typ, ok := goTypes[p.Type]
		if !ok {
			return nil, fmt.Errorf("%s: no Go type for %s", fn.GoName, p.Type)
		}
		method := "Arg"
		if i >= fn.MinArgs {
			method = "Optional"
		}
		s.Dot(method).Call(jen.Lit(p.LispName), jen.Qual(LispPath, "ParamOf").Call(jen.Qual(LispPath, p.Type)))
		args = append(args, jen.Qual(LispPath, "Arg").Types(typ()).Call(jen.Id("c"), jen.Lit(i)))
	}
	if fn.Rest != nil {
		typ, ok := goTypes[fn.Rest.Type]
		if !ok {
			return nil, fmt.Errorf("%s: no Go type for %s", fn.GoName, fn.Rest.Type)
		}
		s.Dot("Rest").Call(jen.Lit(fn.Rest.LispName), jen.Qual(LispPath, "ParamOf").Call(jen.Qual(LispPath, fn.Rest.Type)))
		args = append(args, jen.Qual(LispPath, "RestArgs").Types(typ()).Call(jen.Id("c")).Op("..."))
	}

	call := jen.Id(fn.GoName).Call(args...)
	nilObj := jen.Qual(LispPath, "Nil")
	var body []jen.Code
	switch {
	case fn.Result == "" && !fn.ReturnsErr:
		body = []jen.Code{call, jen.Return(nilObj, jen.Nil())}
	case fn.Result == "":
		body = []jen.Code{jen.Return(nilObj, call)}
	case fn.Result == "Any" && fn.ReturnsErr:
		body = []jen.Code{jen.Return(call)}
	case fn.Result == "Any":
		body = []jen.Code{jen.Return(call, jen.Nil())}
	case fn.ReturnsErr:
		body = []jen.Code{
			jen.List(jen.Id("v"), jen.Err()).Op(":=").Add(call),
			jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(nilObj, jen.Err())),
			jen.Return(inject(fn.Result, jen.Id("v"))),
		}
	default:
		body = []jen.Code{jen.Return(inject(fn.Result, call))}
	}

	s.Dot("MustBody").Call(
		jen.Func().Params(jen.Id("c").Op("*").Qual(LispPath, "Call")).
			Params(jen.Qual(LispPath, "Object"), jen.Error()).
			Block(body...),
	)
	return s, nil
}

func inject(key string, v jen.Code) *jen.Statement {
	return jen.Qual(LispPath, "Inject").Call(jen.Id("c").Dot("Env"), jen.Qual(LispPath, key), v)
}
