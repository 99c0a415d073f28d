package psl

import (
	"slices"
	"strings"
	"testing"
)

const testList = `// ===BEGIN ICANN DOMAINS===
com
uk
co.uk
*.ck
!www.ck
// ===END ICANN DOMAINS===
// ===BEGIN PRIVATE DOMAINS===
blogspot.com
// ===END PRIVATE DOMAINS===
`

func TestRegisteredDomain(t *testing.T) {
	l := Default()
	tests := []struct {
		name string
		want string
	}{
		{"www.Example.COM.", "example.com."},
		{"example.com.", "example.com."},
		{"a.b.example.co.uk.", "example.co.uk."},
		{"*.example.org.", "example.org."},
		{"com.", ""},
		{".", ""},
	}
	for _, tt := range tests {
		if got := l.RegisteredDomain(tt.name); got != tt.want {
			t.Errorf("RegisteredDomain(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	l, err := Load(strings.NewReader(testList), false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ck.", "com.", "uk.", "co.uk."}
	if got := l.Suffixes(); !slices.Equal(got, want) {
		t.Errorf("Suffixes() = %v, want %v", got, want)
	}
	if got := l.RegisteredDomain("foo.bar.co.uk."); got != "bar.co.uk." {
		t.Errorf("got %q", got)
	}

	private, err := Load(strings.NewReader(testList), true)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(private.Suffixes(), "blogspot.com.") {
		t.Errorf("private suffix missing from %v", private.Suffixes())
	}
	if slices.Contains(l.Suffixes(), "blogspot.com.") {
		t.Error("private suffix loaded without private domains")
	}
}

func TestGroup(t *testing.T) {
	owners := []string{
		"com.",
		"example.com.",
		"www.example.com.",
		"mail.example.com.",
		"other.co.uk.",
		"a.example.com.",
	}
	got := Default().Group(slices.Values(owners))
	want := []Domain{
		{Name: "example.com.", Owners: 4},
		{Name: "other.co.uk.", Owners: 1},
	}
	if !slices.Equal(got, want) {
		t.Errorf("Group() = %v, want %v", got, want)
	}
}
