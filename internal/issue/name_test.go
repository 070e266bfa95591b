package issue

import (
	"sort"
	"testing"
)

func TestParseName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    Name
		wantErr bool
	}{
		{"2-add-parser", Name{Major: 2, Slug: "add-parser"}, false},
		{"2.1-add-parser", Name{Major: 2, Minor: 1, HasMinor: true, Slug: "add-parser"}, false},
		{"2.1.3-fix_bug", Name{Major: 2, Minor: 1, Patch: 3, HasMinor: true, HasPatch: true, Slug: "fix_bug"}, false},
		{"add-parser", Name{}, true},
		{"2.1-", Name{}, true},
		{"2.1-9lives", Name{}, true},
		{"v2.1-add", Name{}, true},
		{"", Name{}, true},
	}
	for _, tc := range cases {
		got, err := ParseName(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseName(%q) succeeded, want error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseName(%q): %v", tc.raw, err)
			continue
		}
		if *got != tc.want {
			t.Errorf("ParseName(%q) = %+v, want %+v", tc.raw, *got, tc.want)
		}
		if got.String() != tc.raw {
			t.Errorf("round trip %q -> %q", tc.raw, got.String())
		}
	}
}

func TestName_Less_TotalOrder(t *testing.T) {
	t.Parallel()
	raw := []string{"10-z", "2.1.3-c", "2.1-b", "2-a", "2.10-d", "2.2-e", "1-first"}
	names := make([]*Name, len(raw))
	for i, r := range raw {
		n, err := ParseName(r)
		if err != nil {
			t.Fatal(err)
		}
		names[i] = n
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Less(names[j]) })
	want := []string{"1-first", "2-a", "2.1-b", "2.1.3-c", "2.2-e", "2.10-d", "10-z"}
	for i, n := range names {
		if n.String() != want[i] {
			t.Fatalf("sorted[%d] = %s, want %s (full: %v)", i, n.String(), want[i], names)
		}
	}
}
