package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, "labplanner/internal/oligo", true},
		{"internal pkg", InternalImportForbidden, "labplanner/pkg/domain", false},
		{"infra", InfraImportForbidden, "labplanner/internal/infra/persistence/sqlite", true},
		{"infra root", InfraImportForbidden, "labplanner/internal/infra", true},
		{"infra sibling", InfraImportForbidden, "labplanner/internal/inventory", false},
		{"prefix", PrefixForbidden("labplanner/internal/core"), "labplanner/internal/core", true},
		{"prefix child", PrefixForbidden("labplanner/internal/core"), "labplanner/internal/core/sub", true},
		{"prefix lookalike", PrefixForbidden("labplanner/internal/core"), "labplanner/internal/corex", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("%s: predicate(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func writePackage(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestDirectImportViolations(t *testing.T) {
	dir := writePackage(t, map[string]string{
		"a.go":      "package tmp\n\nimport (\n\t\"fmt\"\n\t\"labplanner/internal/oligo\"\n)\n",
		"b_test.go": "package tmp\n\nimport \"labplanner/internal/core\"\n",
		"notes.txt": "import \"labplanner/internal/core\"",
	})
	if err := os.Mkdir(filepath.Join(dir, "sub.go"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "labplanner/internal/oligo (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestDirectImportErrors(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected missing dir error")
	}
	dir := writePackage(t, map[string]string{"bad.go": "package"})
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func stubLoad(t *testing.T, fn func(string) ([]*packages.Package, error)) {
	t.Helper()
	prev := loadPackages
	loadPackages = fn
	t.Cleanup(func() { loadPackages = prev })
}

func TestTransitiveDependencyViolations(t *testing.T) {
	infra := &packages.Package{PkgPath: "labplanner/internal/infra/persistence/memory", Imports: map[string]*packages.Package{}}
	inv := &packages.Package{PkgPath: "labplanner/internal/inventory", Imports: map[string]*packages.Package{"x": infra}}
	root := &packages.Package{PkgPath: "labplanner/internal/infra/artifact/fs", Imports: map[string]*packages.Package{"y": inv, "z": infra}}
	stubLoad(t, func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil })

	viols, err := transitiveDependencyViolations("labplanner/internal/infra/artifact/fs", InfraImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != infra.PkgPath {
		t.Fatalf("expected only the reachable infra package, got %v", viols)
	}

	stubLoad(t, func(string) ([]*packages.Package, error) { return nil, errors.New("boom") })
	if _, err := transitiveDependencyViolations("x", InfraImportForbidden); err == nil {
		t.Fatalf("expected load error")
	}
}

type captureFatal struct{ msg string }

func (c *captureFatal) Fatalf(format string, args ...any) { c.msg = fmt.Sprintf(format, args...) }

func TestFailHelpers(t *testing.T) {
	var c captureFatal
	failIfTransitiveViolations(&c, "reason", nil)
	failIfDirectViolations(&c, "reason", nil)
	if c.msg != "" {
		t.Fatalf("unexpected failure %q", c.msg)
	}
	failIfTransitiveViolations(&c, "stages stay storage free", []string{"a", "b"})
	if !strings.Contains(c.msg, "stages stay storage free") || !strings.HasSuffix(c.msg, "a\nb") {
		t.Fatalf("unexpected message %q", c.msg)
	}
	failIfDirectViolations(&c, "domain", []string{"x (in a.go)"})
	if !strings.Contains(c.msg, "forbidden direct imports detected (domain)") {
		t.Fatalf("unexpected message %q", c.msg)
	}
}
