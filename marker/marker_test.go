package marker

import (
	"testing"

	"github.com/pylock-dev/pylock/pep440"
)

func env(version string, values map[string]string, extra string) Environment {
	v := map[string]string{"python_version": version}
	for k, val := range values {
		v[k] = val
	}
	return Environment{Values: v, Extra: extra}
}

func TestEvaluate(t *testing.T) {
	tt := []struct {
		name string
		expr string
		env  Environment
		want bool
	}{
		{
			name: "Simple",
			expr: `python_version >= "3.8"`,
			env:  env("3.11", nil, ""),
			want: true,
		},
		{
			name: "SimpleFalse",
			expr: `python_version >= "3.8"`,
			env:  env("3.7", nil, ""),
			want: false,
		},
		{
			name: "And",
			expr: `python_version >= "3.8" and sys_platform == "linux"`,
			env:  env("3.11", map[string]string{"sys_platform": "linux"}, ""),
			want: true,
		},
		{
			name: "Or",
			expr: `sys_platform == "win32" or sys_platform == "linux"`,
			env:  env("3.11", map[string]string{"sys_platform": "linux"}, ""),
			want: true,
		},
		{
			name: "Parens",
			expr: `(sys_platform == "win32" or sys_platform == "linux") and python_version < "3.12"`,
			env:  env("3.11", map[string]string{"sys_platform": "linux"}, ""),
			want: true,
		},
		{
			name: "Extra",
			expr: `extra == "dev"`,
			env:  env("3.11", nil, "dev"),
			want: true,
		},
		{
			name: "ExtraMismatch",
			expr: `extra == "dev"`,
			env:  env("3.11", nil, "test"),
			want: false,
		},
		{
			name: "ReversedOperands",
			expr: `"3.8" <= python_version`,
			env:  env("3.11", nil, ""),
			want: true,
		},
		{
			name: "NotIn",
			expr: `platform_system not in "Windows"`,
			env:  env("3.11", map[string]string{"platform_system": "Linux"}, ""),
			want: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			tree, err := Parse(tc.expr)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			t.Logf("parsed: %s", tree)
			if got := tree.Evaluate(tc.env); got != tc.want {
				t.Errorf("Evaluate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateTri(t *testing.T) {
	py38Plus := pep440.Specifiers{{Op: pep440.OpGTE, V: pep440.MustParse("3.8")}}.Range()
	py37Only := pep440.Specifiers{{Op: pep440.OpEqual, V: pep440.MustParse("3.7")}}.Range()

	tt := []struct {
		name string
		expr string
		env  Partial
		want Tristate
	}{
		{
			name: "AlwaysTrue",
			expr: `python_version >= "3.7"`,
			env:  Partial{PythonRange: py38Plus},
			want: True,
		},
		{
			name: "AlwaysFalse",
			expr: `python_version < "3.7"`,
			env:  Partial{PythonRange: py38Plus},
			want: False,
		},
		{
			name: "Maybe",
			expr: `python_version >= "3.9"`,
			env:  Partial{PythonRange: py38Plus},
			want: Maybe,
		},
		{
			name: "UnknownPlatform",
			expr: `sys_platform == "win32"`,
			env:  Partial{},
			want: Maybe,
		},
		{
			name: "KnownPlatform",
			expr: `sys_platform == "win32"`,
			env:  Partial{Values: map[string]string{"sys_platform": "win32"}},
			want: True,
		},
		{
			name: "UnknownExtra",
			expr: `extra == "dev"`,
			env:  Partial{},
			want: Maybe,
		},
		{
			name: "AndPropagatesFalse",
			expr: `python_version < "3.7" and sys_platform == "win32"`,
			env:  Partial{PythonRange: py38Plus},
			want: False,
		},
		{
			name: "OrPropagatesTrue",
			expr: `python_version >= "3.7" or sys_platform == "win32"`,
			env:  Partial{PythonRange: py38Plus},
			want: True,
		},
		{
			name: "NarrowRangeFullyContained",
			expr: `python_version == "3.7"`,
			env:  Partial{PythonRange: py37Only},
			want: True,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			tree, err := Parse(tc.expr)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := tree.EvaluateTri(tc.env); got != tc.want {
				t.Errorf("EvaluateTri() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tt := []string{
		`python_version >=`,
		`python_version >= "3.8" extra`,
		`bogus_var == "x"`,
		`extra < "dev"`,
	}
	for _, expr := range tt {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", expr)
		}
	}
}
