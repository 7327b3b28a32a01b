package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	scanOpts.filter, scanOpts.q, scanOpts.limit, scanOpts.count = "", "", 0, false
	compileOpts.q, compileOpts.asJSON = "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const people = `{"name":"ada","age":36,"langs":["go","c"]}
{"name":"bob","age":17}
{"name":"cy","age":52,"langs":["rust"]}
`

func TestScan(t *testing.T) {
	path := writeFile(t, "people.jsonl", people)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"json filter", []string{"scan", "--filter", `{"age":{"$gt":30}}`, path}, []string{"ada", "cy"}},
		{"nanoql", []string{"scan", "--q", "langs:go", path}, []string{"ada"}},
		{"both", []string{"scan", "-f", `{"age":{"$gt":30}}`, "-q", "name != ada", path}, []string{"cy"}},
		{"limit", []string{"scan", "-n", "1", path}, []string{"ada"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			lines := strings.Split(strings.TrimSpace(out), "\n")
			if len(lines) != len(tt.want) {
				t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(tt.want), out)
			}
			for i, name := range tt.want {
				if !strings.Contains(lines[i], `"name":"`+name+`"`) {
					t.Errorf("line %d = %s, want %s", i, lines[i], name)
				}
			}
		})
	}

	out, err := run(t, "scan", "--count", "--filter", `{"age":{"$lt":40}}`, path)
	if err != nil || strings.TrimSpace(out) != "2" {
		t.Errorf("count = %q, %v", out, err)
	}
}

func TestScanErrors(t *testing.T) {
	path := writeFile(t, "people.jsonl", people)

	_, err := run(t, "scan", "--filter", `{"age":{"$where":"x"}}`, path)
	if err == nil || !strings.Contains(err.Error(), "unsupported_operator") {
		t.Errorf("err = %v, want unsupported_operator", err)
	}
	_, err = run(t, "scan", "--q", "a:1 OR b:2", path)
	if err == nil {
		t.Error("OR should be rejected")
	}
	_, err = run(t, "scan", filepath.Join(t.TempDir(), "missing.jsonl"))
	if err == nil {
		t.Error("missing file should fail")
	}
}

func TestCompileCommand(t *testing.T) {
	out, err := run(t, "compile", `{"a":1,"b":{"$in":[1,2]}}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "nodes:") || !strings.Contains(out, "any b") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = run(t, "compile", "--json", "--q", "age >= 21")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"$gte": 21`) && !strings.Contains(out, `"$gte":21`) {
		t.Errorf("unexpected output:\n%s", out)
	}

	_, err = run(t, "compile", `{"$bogus":1}`)
	if err == nil || !strings.Contains(err.Error(), "unknown_operator") {
		t.Errorf("err = %v", err)
	}
}

func TestHashToken(t *testing.T) {
	out, err := run(t, "hash-token", "--cost", "4", "secret")
	if err != nil {
		t.Fatal(err)
	}
	hash := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "hash:"))
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Errorf("hash %q does not verify: %v", hash, err)
	}
}

func TestShellExec(t *testing.T) {
	var out bytes.Buffer
	sh := newShell(&out)
	if err := sh.load(writeFile(t, "people.jsonl", people)); err != nil {
		t.Fatal(err)
	}
	out.Reset()

	steps := []struct {
		input string
		want  string
	}{
		{`{"name":"bob"}`, `"name":"bob"`},
		{`.count age > 20`, "2 matching documents"},
		{`.explain {"age":{"$gte":18}}`, "nodes:"},
		{`.limit 1`, ""},
		{`age > 0`, "3 matching documents"},
		{`.stats`, "documents: 3"},
	}
	for _, s := range steps {
		out.Reset()
		quit, err := sh.exec(s.input)
		if err != nil || quit {
			t.Fatalf("%s: quit=%v err=%v", s.input, quit, err)
		}
		if !strings.Contains(out.String(), s.want) {
			t.Errorf("%s: output %q lacks %q", s.input, out.String(), s.want)
		}
	}

	if _, err := sh.exec(`{"a":{"$regex":"x"}}`); err == nil {
		t.Error("unsupported operator should fail")
	}
	if _, err := sh.exec(".nope"); err == nil {
		t.Error("unknown command should fail")
	}
	if quit, _ := sh.exec(".quit"); !quit {
		t.Error(".quit should exit")
	}
}
