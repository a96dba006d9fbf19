// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-check compares the message ids passed to i18n.T in the Go sources with
// the embedded locale catalogs. It fails when code uses an id that the
// English catalog lacks, or when another catalog misses an English id.
// Ids only present in catalogs are reported as unused.
//
// Usage (from the repository root):
//
//	go run ./tools/i18n-check
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

var callRe = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

// report is the outcome of one check.
type report struct {
	Used      map[string][]string // id -> files using it
	Undefined []string            // used but not in the primary catalog
	Unused    []string            // in the primary catalog but never used
	Missing   map[string][]string // catalog file -> primary ids it lacks
}

func (r *report) failed() bool {
	return len(r.Undefined) > 0 || len(r.Missing) > 0
}

func main() {
	r, err := check(".", localesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18n-check: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("%d message id(s) used in code\n", len(r.Used))
	for _, id := range r.Undefined {
		fmt.Printf("undefined: %s (used in %s)\n", id, strings.Join(r.Used[id], ", "))
	}
	files := make([]string, 0, len(r.Missing))
	for f := range r.Missing {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		for _, id := range r.Missing[f] {
			fmt.Printf("missing in %s: %s\n", f, id)
		}
	}
	for _, id := range r.Unused {
		fmt.Printf("unused: %s\n", id)
	}
	if r.failed() {
		os.Exit(1)
	}
}

// check scans root for i18n.T calls and compares them with the catalogs in
// locales.
func check(root, locales string) (*report, error) {
	used, err := findUsedKeys(root)
	if err != nil {
		return nil, fmt.Errorf("scan sources: %w", err)
	}
	primary, err := loadCatalog(filepath.Join(root, locales, primaryLocale))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", primaryLocale, err)
	}

	r := &report{Used: used, Missing: map[string][]string{}}
	for id := range used {
		if _, ok := primary[id]; !ok {
			r.Undefined = append(r.Undefined, id)
		}
	}
	for id := range primary {
		if _, ok := used[id]; !ok {
			r.Unused = append(r.Unused, id)
		}
	}
	sort.Strings(r.Undefined)
	sort.Strings(r.Unused)

	others, err := filepath.Glob(filepath.Join(root, locales, "*.yaml"))
	if err != nil {
		return nil, err
	}
	for _, path := range others {
		name := filepath.Base(path)
		if name == primaryLocale {
			continue
		}
		cat, err := loadCatalog(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		var missing []string
		for id := range primary {
			if _, ok := cat[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			r.Missing[name] = missing
		}
	}
	return r, nil
}

// findUsedKeys returns every literal id passed to i18n.T in non-test Go files
// below root. The tools and _examples trees are skipped.
func findUsedKeys(root string) (map[string][]string, error) {
	keys := make(map[string][]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == "tools" || strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range callRe.FindAllStringSubmatch(string(content), -1) {
			files := keys[m[1]]
			if len(files) == 0 || files[len(files)-1] != path {
				keys[m[1]] = append(files, path)
			}
		}
		return nil
	})
	return keys, err
}

// loadCatalog reads a locale file into a set of message ids. Nested maps are
// flattened with dots, as go-i18n does.
func loadCatalog(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flatten("", data, keys)
	return keys, nil
}

func flatten(prefix string, node any, keys map[string]struct{}) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
		return
	}
	for k, v := range m {
		next := k
		if prefix != "" {
			next = prefix + "." + k
		}
		flatten(next, v, keys)
	}
}
