package pep440

import "testing"

type specifierTestcase struct {
	Name    string
	Spec    string
	In      []string // versions expected to match
	NotIn   []string // versions expected not to match
	WantErr bool
}

func (tc specifierTestcase) Run(t *testing.T) {
	specs, err := ParseSpecifiers(tc.Spec)
	if (err != nil) != tc.WantErr {
		t.Fatalf("ParseSpecifiers(%q): %v", tc.Spec, err)
	}
	if tc.WantErr {
		return
	}
	r := specs.Range()
	t.Logf("%s -> %s", tc.Spec, r)
	for _, s := range tc.In {
		if !r.Contains(MustParse(s)) {
			t.Errorf("%s: expected %s to match", tc.Spec, s)
		}
	}
	for _, s := range tc.NotIn {
		if r.Contains(MustParse(s)) {
			t.Errorf("%s: expected %s not to match", tc.Spec, s)
		}
	}
}

func TestSpecifiers(t *testing.T) {
	tt := []specifierTestcase{
		{
			Name:  "Equal",
			Spec:  "==1.0",
			In:    []string{"1.0", "1.0.0"},
			NotIn: []string{"1.1", "0.9", "1.0.1"},
		},
		{
			Name:  "NotEqual",
			Spec:  "!=1.0",
			In:    []string{"0.9", "1.1"},
			NotIn: []string{"1.0"},
		},
		{
			Name:  "GTE",
			Spec:  ">=1.0",
			In:    []string{"1.0", "1.1", "2.0"},
			NotIn: []string{"0.9"},
		},
		{
			Name:  "GT",
			Spec:  ">1.0",
			In:    []string{"1.0.1", "2.0"},
			NotIn: []string{"1.0", "0.9"},
		},
		{
			Name:  "LTE",
			Spec:  "<=1.0",
			In:    []string{"1.0", "0.9"},
			NotIn: []string{"1.0.1"},
		},
		{
			Name:  "LT",
			Spec:  "<1.0",
			In:    []string{"0.9"},
			NotIn: []string{"1.0"},
		},
		{
			Name:  "Compatible2",
			Spec:  "~=2.2",
			In:    []string{"2.2", "2.2.1", "2.9"},
			NotIn: []string{"2.1", "3.0", "3.0.dev0"},
		},
		{
			Name:  "Compatible3",
			Spec:  "~=2.2.1",
			In:    []string{"2.2.1", "2.2.9"},
			NotIn: []string{"2.2.0", "2.3", "2.1.9"},
		},
		{
			Name:  "EqualStar",
			Spec:  "==2.2.*",
			In:    []string{"2.2", "2.2.1", "2.2.99"},
			NotIn: []string{"2.1.99", "2.3", "2.3.0"},
		},
		{
			Name:  "NotEqualStar",
			Spec:  "!=2.2.*",
			In:    []string{"2.1", "2.3"},
			NotIn: []string{"2.2", "2.2.1"},
		},
		{
			Name:  "Conjunction",
			Spec:  ">=1.0,!=1.3.*,<2.0",
			In:    []string{"1.0", "1.2.9", "1.9"},
			NotIn: []string{"0.9", "1.3", "1.3.5", "2.0"},
		},
		{
			Name:  "Arbitrary",
			Spec:  "===1.0",
			In:    []string{"1.0", "1.0.0"},
			NotIn: []string{"1.1"},
		},
		{
			Name:    "Malformed",
			Spec:    ">= 1.0 junk",
			WantErr: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.Name, tc.Run)
	}
}

func TestRangeAlgebra(t *testing.T) {
	a := MustParse("1.0")
	b := MustParse("2.0")

	lt1 := Specifier{Op: OpLT, V: a}.Range()
	gte1 := Specifier{Op: OpGTE, V: a}.Range()

	if !lt1.Union(gte1).Contains(a) || !lt1.Union(gte1).Contains(b) {
		t.Error("union of complementary half-lines must be Full")
	}
	if got := lt1.Intersect(gte1); !got.IsEmpty() {
		t.Errorf("intersection of complementary half-lines must be empty, got %s", got)
	}
	if got := lt1.Complement(); got.String() != gte1.String() {
		t.Errorf("complement of <1.0 should equal >=1.0: got %s want %s", got, gte1)
	}
	if got := Full().Complement(); !got.IsEmpty() {
		t.Errorf("complement of Full must be empty, got %s", got)
	}
	if got := Range(nil).Complement(); got.String() != Full().String() {
		t.Errorf("complement of empty must be Full, got %s", got)
	}

	// Double complement round-trips.
	ne := single(a).Complement()
	if got := ne.Complement(); !got.Contains(a) || got.Contains(b) {
		t.Errorf("double complement of {1.0} should be {1.0}, got %s", got)
	}
}

func TestRangeUnionMerge(t *testing.T) {
	// [1.0, 2.0) union [2.0, 3.0) should merge into one interval, since
	// there's no version excluded from both halves.
	lo := Specifier{Op: OpLT, V: MustParse("2.0")}.Range().Intersect(
		Specifier{Op: OpGTE, V: MustParse("1.0")}.Range())
	hi := Specifier{Op: OpLT, V: MustParse("3.0")}.Range().Intersect(
		Specifier{Op: OpGTE, V: MustParse("2.0")}.Range())
	u := lo.Union(hi)
	if len(u) != 1 {
		t.Fatalf("expected adjoining intervals to merge into one, got %d: %s", len(u), u)
	}
	if !u.Contains(MustParse("1.5")) || !u.Contains(MustParse("2.0")) || !u.Contains(MustParse("2.5")) {
		t.Errorf("merged range should cover [1.0,3.0), got %s", u)
	}
	if u.Contains(MustParse("3.0")) {
		t.Errorf("merged range must not include 3.0")
	}

	// But [1.0, 2.0) union (2.0, 3.0) must NOT merge: 2.0 itself is
	// excluded from both.
	hiExcl := Specifier{Op: OpLT, V: MustParse("3.0")}.Range().Intersect(
		Specifier{Op: OpGT, V: MustParse("2.0")}.Range())
	split := lo.Union(hiExcl)
	if len(split) != 2 {
		t.Fatalf("expected a gap at 2.0 to keep two intervals, got %d: %s", len(split), split)
	}
	if split.Contains(MustParse("2.0")) {
		t.Errorf("gap at 2.0 must not be covered")
	}
}
