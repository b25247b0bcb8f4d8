package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteSourceTree materializes files under a fresh temp directory and
// returns its path. Keys are slash-separated relative paths. The directory
// is removed automatically when the test finishes.
func WriteSourceTree(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return root
}

// SampleRepo returns a small polyglot source tree that exercises every
// built-in parser plus the whole-file fallback.
func SampleRepo() map[string]string {
	return map[string]string{
		"cmd/app/main.go": `package main

import "fmt"

func main() {
	fmt.Println(greet("world"))
}

func greet(name string) string {
	return "hello " + name
}
`,
		"internal/store/store.go": `package store

// Store keeps key/value pairs in memory.
type Store struct {
	data map[string]string
}

func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(key string) (string, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Set(key, value string) {
	s.data[key] = value
}
`,
		"scripts/report.py": `import json


class Report:
    def __init__(self, name):
        self.name = name

    def render(self):
        return json.dumps({"name": self.name})


def build(name):
    return Report(name)
`,
		"web/app.ts": `export function formatCount(n: number): string {
  return n === 1 ? "1 item" : n + " items";
}

export class Counter {
  private n = 0;

  increment(): number {
    this.n += 1;
    return this.n;
  }
}
`,
		"README.md": `# Sample Project

A tiny fixture repository.

## Usage

Run the app and watch it greet the world.

## License

MIT
`,
		"config.yaml": "app:\n  name: sample\n  port: 8080\n",
	}
}
