package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/muesli/gitcha"
)

var (
	documentPatterns = []string{
		"*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown", "*.pdf", "*.txt",
	}
	readmeNames = []string{"README.md", "README.markdown", "README.txt", "README"}
)

// resolveDocument turns the FILE argument into the absolute path of a
// readable document. A directory, or no argument at all, resolves to the
// document found in it.
func resolveDocument(arg string) (string, error) {
	if arg == "" {
		arg = "."
	}
	arg, err := homedir.Expand(arg)
	if err != nil {
		return "", fmt.Errorf("unable to expand path: %w", err)
	}

	st, err := os.Stat(arg)
	if err != nil {
		return "", fmt.Errorf("unable to open document: %w", err)
	}

	p, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("unable to get absolute path: %w", err)
	}
	if !st.IsDir() {
		return p, nil
	}
	return findDocument(p)
}

// findDocument picks a README in dir if there is one, otherwise the
// shallowest document, honoring .gitignore.
func findDocument(dir string) (string, error) {
	ch, err := gitcha.FindFilesExcept(dir, documentPatterns, nil)
	if err != nil {
		return "", fmt.Errorf("unable to search %s: %w", dir, err)
	}

	var found []string
	for res := range ch {
		found = append(found, res.Path)
	}
	if len(found) == 0 {
		return "", errors.New("no document found in " + dir)
	}

	depth := func(p string) int { return strings.Count(p, string(os.PathSeparator)) }
	sort.Slice(found, func(i, j int) bool {
		if di, dj := depth(found[i]), depth(found[j]); di != dj {
			return di < dj
		}
		return found[i] < found[j]
	})

	for _, p := range found {
		if depth(p) != depth(found[0]) {
			break
		}
		for _, v := range readmeNames {
			if strings.EqualFold(filepath.Base(p), v) {
				return p, nil
			}
		}
	}
	return found[0], nil
}
