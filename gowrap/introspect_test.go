package gowrap

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/krobelus/remacs/prims/text"
)

func TestIntrospectPackage_Sample(t *testing.T) {
	model, err := IntrospectPackage("./testdata/sample", "")
	if err != nil {
		t.Fatalf("IntrospectPackage(sample): %v", err)
	}

	if model.Name != "sample" {
		t.Errorf("expected package name 'sample', got %q", model.Name)
	}
	if !strings.HasSuffix(model.ImportPath, "gowrap/testdata/sample") {
		t.Errorf("unexpected import path %q", model.ImportPath)
	}

	p := "p"
	want := []FunctionModel{
		{
			GoName: "Identity", LispName: "sample-identity", Doc: "Return ARG unchanged.",
			MinArgs: 1,
			Params:  []ParamModel{{GoName: "arg", LispName: "arg", Type: "Any"}},
			Result:  "Any",
		},
		{
			GoName: "SampleSum", LispName: "sample-sum", Doc: "Return the sum of NUMS.",
			Rest:   &ParamModel{GoName: "nums", LispName: "nums", Type: "Integer"},
			Result: "Integer",
		},
		{
			GoName: "SampleBeep", LispName: "sample-beep", Doc: "Ring the bell COUNT times.",
			IntSpec:    &p,
			Params:     []ParamModel{{GoName: "count", LispName: "count", Type: "Fixnum"}},
			TakesEnv:   true,
			ReturnsErr: true,
		},
		{GoName: "SampleNothing", LispName: "sample-nothing"},
	}
	if diff := cmp.Diff(want, model.Functions); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}
	if got := model.Functions[1].MaxArgs(); got != -1 {
		t.Errorf("MaxArgs() of a variadic function = %d, want -1", got)
	}
}

// The checked-in registration file for prims/text must agree with its
// directives.
func TestIntrospectPackage_Text(t *testing.T) {
	model, err := IntrospectPackage("github.com/krobelus/remacs/prims/text", "")
	if err != nil {
		t.Fatalf("IntrospectPackage(text): %v", err)
	}

	exports := text.Exports()
	if len(exports) != len(model.Functions) {
		t.Fatalf("zz_exports.go has %d descriptors, directives declare %d", len(exports), len(model.Functions))
	}
	for i, fn := range model.Functions {
		d := exports[i]
		if d.Name() != fn.LispName || d.MinArgs() != fn.MinArgs || d.MaxArgs() != fn.MaxArgs() || d.Doc() != fn.Doc {
			t.Errorf("descriptor %d is %s (%d . %d), directive says %s (%d . %d); run go generate",
				i, d.Name(), d.MinArgs(), d.MaxArgs(), fn.LispName, fn.MinArgs, fn.MaxArgs())
		}
	}
}

func TestIntrospectPackage_Errors(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"./testdata/badtype", "unsupported type chan int"},
		{"nonexistent/package/path", ""},
	}
	for _, tt := range tests {
		_, err := IntrospectPackage(tt.pattern, "")
		if err == nil {
			t.Errorf("IntrospectPackage(%s): expected error", tt.pattern)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("IntrospectPackage(%s) = %v, want it to mention %q", tt.pattern, err, tt.want)
		}
	}
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		input   string
		want    map[string]string
		wantErr bool
	}{
		{"", map[string]string{}, false},
		{"name=string-join min=1", map[string]string{"name": "string-join", "min": "1"}, false},
		{`intspec="sFind: \nP" min=0`, map[string]string{"intspec": "sFind: \nP", "min": "0"}, false},
		{`intspec=""`, map[string]string{"intspec": ""}, false},
		{"name", nil, true},
		{"=x", nil, true},
		{"min=1 min=2", nil, true},
		{`intspec="unterminated`, nil, true},
	}
	for _, tt := range tests {
		got, err := parseDirective(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDirective(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if diff := cmp.Diff(tt.want, got); !tt.wantErr && diff != "" {
			t.Errorf("parseDirective(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}
