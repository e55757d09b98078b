package fingerprint

import "testing"

func TestDeterministicAcrossPermutations(t *testing.T) {
	perms := [][]string{
		{"a.py", "b.py", "c.py"},
		{"c.py", "a.py", "b.py"},
		{"b.py", "c.py", "a.py"},
	}

	want := Fingerprint(perms[0])
	for i, p := range perms[1:] {
		if got := Fingerprint(p); got != want {
			t.Errorf("permutation %d: digest %s != %s", i+1, got, want)
		}
	}
}

func TestDeduplication(t *testing.T) {
	a := Fingerprint([]string{"a.py", "a.py", "b.py"})
	b := Fingerprint([]string{"a.py", "b.py"})
	if a != b {
		t.Error("duplicate paths must not change the digest")
	}
}

func TestDistinctSetsDiffer(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
	}{
		{"added file", []string{"a.py"}, []string{"a.py", "b.py"}},
		{"different file", []string{"a.py"}, []string{"b.py"}},
		{"empty vs one", nil, []string{"a.py"}},
		{"join ambiguity", []string{"ab"}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Fingerprint(tt.a) == Fingerprint(tt.b) {
				t.Errorf("distinct sets produced identical digests")
			}
		})
	}
}

func TestEmptyIgnoresBlankEntries(t *testing.T) {
	if Fingerprint([]string{""}) != Empty() {
		t.Error("blank entries must be ignored")
	}
}

func TestContainsSeparator(t *testing.T) {
	if !ContainsSeparator("weird\nname") {
		t.Error("newline path must be flagged")
	}
	if ContainsSeparator("normal/path.py") {
		t.Error("normal path flagged")
	}
}
