package gowrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateGoGlue_Sample(t *testing.T) {
	model, err := IntrospectPackage("./testdata/sample", "")
	if err != nil {
		t.Fatalf("IntrospectPackage: %v", err)
	}

	code, err := GenerateGoGlue(model)
	if err != nil {
		t.Fatalf("GenerateGoGlue: %v", err)
	}

	for _, want := range []string{
		"// Code generated by remacs wrap. DO NOT EDIT.",
		"package sample",
		`"github.com/krobelus/remacs/lisp"`,
		`"math/big"`,
		"func RegisterExports(reg *lisp.Registry) error",
		"func Exports() []*lisp.Descriptor",
		`lisp.Defun("sample-identity")`,
		`.Arg("arg", lisp.ParamOf(lisp.Any))`,
		"return Identity(lisp.Arg[lisp.Object](c, 0)), nil",
		`.Rest("nums", lisp.ParamOf(lisp.Integer))`,
		"lisp.Inject(c.Env, lisp.Integer, SampleSum(lisp.RestArgs[*big.Int](c)...))",
		`.Interactive("p")`,
		`.Optional("count", lisp.ParamOf(lisp.Fixnum))`,
		"return lisp.Nil, SampleBeep(c.Env, lisp.Arg[int64](c, 0))",
		"SampleNothing()\n",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("generated code lacks %q", want)
		}
	}
	if strings.Contains(code, "Helper") {
		t.Error("function without a directive was exported")
	}

	// Golden file test
	goldenFile := filepath.Join("testdata", "sample_exports.go.golden")
	updateGolden(t, goldenFile, code)
	compareGolden(t, goldenFile, code)
}

func TestGenerateGoGlue_ErrorHandling(t *testing.T) {
	model := &PackageModel{
		ImportPath: "example.com/strs",
		Name:       "strs",
		Functions: []FunctionModel{{
			GoName:     "Join",
			LispName:   "strs-join",
			MinArgs:    1,
			Params:     []ParamModel{{GoName: "parts", LispName: "parts", Type: "List"}, {GoName: "sep", LispName: "sep", Type: "String"}},
			Result:     "String",
			ReturnsErr: true,
		}},
	}

	code, err := GenerateGoGlue(model)
	if err != nil {
		t.Fatalf("GenerateGoGlue: %v", err)
	}
	for _, want := range []string{
		"v, err := Join(lisp.Arg[[]lisp.Object](c, 0), lisp.Arg[string](c, 1))",
		"return lisp.Nil, err",
		"return lisp.Inject(c.Env, lisp.String, v)",
		`.Optional("sep", lisp.ParamOf(lisp.String))`,
	} {
		if !strings.Contains(code, want) {
			t.Errorf("generated code lacks %q", want)
		}
	}

	model.Functions[0].Result = "Channel"
	if _, err := GenerateGoGlue(model); err != nil {
		t.Errorf("GenerateGoGlue with an unknown result type should still render: %v", err)
	}
	model.Functions[0].Params[0].Type = "Channel"
	if _, err := GenerateGoGlue(model); err == nil {
		t.Error("GenerateGoGlue with an unknown parameter type should fail")
	}
}

func TestGenerateGoGlue_EmptyModel(t *testing.T) {
	model := &PackageModel{
		ImportPath: "empty/pkg",
		Name:       "pkg",
	}

	code, err := GenerateGoGlue(model)
	if err != nil {
		t.Fatalf("GenerateGoGlue: %v", err)
	}

	if !strings.Contains(code, "RegisterExports") {
		t.Error("expected RegisterExports even for empty package")
	}
	if !strings.Contains(code, "return []*lisp.Descriptor{}") {
		t.Error("expected an empty descriptor table")
	}
}

func TestWrap(t *testing.T) {
	out := filepath.Join(t.TempDir(), "zz_exports.go")
	model, path, err := Wrap("./testdata/sample", "", out)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if path != out || len(model.Functions) != 4 {
		t.Errorf("Wrap() = %d functions at %s", len(model.Functions), path)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "// Code generated by remacs wrap. DO NOT EDIT.") {
		t.Error("written file lacks the generated-code header")
	}
}

// Golden file helpers

func updateGolden(t *testing.T, path, content string) {
	t.Helper()
	if os.Getenv("UPDATE_GOLDEN") == "" {
		return
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating testdata dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("updating golden file: %v", err)
	}
}

func compareGolden(t *testing.T, path, got string) {
	t.Helper()
	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Logf("Golden file %s does not exist. Run with UPDATE_GOLDEN=1 to create.", path)
		return
	}
	if err != nil {
		t.Fatalf("reading golden file: %v", err)
	}
	if string(expected) != got {
		t.Errorf("output differs from golden file %s.\nRun with UPDATE_GOLDEN=1 to update.", path)
	}
}
