// Package corpus loads few-shot example corpora from YAML files.
package corpus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/cespare/xxhash"
	ignore "github.com/sabhiram/go-gitignore"
	"gopkg.in/yaml.v2"
)

// IgnoreFile names the gitignore-style file that excludes corpus files inside a directory.
const IgnoreFile = ".corpusignore"

// ErrEmptyCorpus is returned by Load when no example was found.
var ErrEmptyCorpus = errors.New("corpus has no examples")

// Load reads the examples of a corpus. path is either a YAML file holding a list of examples
// or a directory whose .yaml and .yml files are read in lexical order. Inside a directory, files
// matched by a .corpusignore file are skipped.
func Load(path string) ([]sqlrag.Example, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error reading corpus: %w", err)
	}

	var files []string
	if info.IsDir() {
		files, err = corpusFiles(path)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{path}
	}

	examples := []sqlrag.Example{}
	for _, file := range files {
		fileExamples, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		examples = append(examples, fileExamples...)
	}

	if len(examples) == 0 {
		return nil, ErrEmptyCorpus
	}

	return examples, nil
}

// Hash returns a fingerprint of the examples and their order.
func Hash(examples []sqlrag.Example) string {
	h := xxhash.New()
	for _, example := range examples {
		for _, field := range []string{example.Question, example.SQLQuery, example.SQLResult, example.Answer} {
			// Length prefixes keep field boundaries apart.
			_, _ = h.Write(binary.BigEndian.AppendUint64(nil, uint64(len(field))))
			_, _ = h.Write([]byte(field))
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func loadFile(path string) ([]sqlrag.Example, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading corpus file %s: %w", path, err)
	}

	var examples []sqlrag.Example
	if err := yaml.UnmarshalStrict(bs, &examples); err != nil {
		return nil, fmt.Errorf("error parsing corpus file %s: %w", path, err)
	}

	for i, example := range examples {
		if strings.TrimSpace(example.Question) == "" {
			return nil, fmt.Errorf("example %d of %s has no question", i, path)
		}
		if strings.TrimSpace(example.SQLQuery) == "" {
			return nil, fmt.Errorf("example %d of %s has no SQL query", i, path)
		}
	}

	return examples, nil
}

func corpusFiles(dir string) ([]string, error) {
	matchers := make(map[string]*ignore.GitIgnore)
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			matcher, err := compileIgnore(path)
			if err != nil {
				return err
			}
			if matcher != nil {
				matchers[path] = matcher
			}
			if path != dir && ignored(path, dir, matchers) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if ignored(path, dir, matchers) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking corpus directory: %w", err)
	}

	return files, nil
}

func compileIgnore(dir string) (*ignore.GitIgnore, error) {
	path := filepath.Join(dir, IgnoreFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("error compiling %s: %w", path, err)
	}
	return matcher, nil
}

// ignored checks path against the matcher of every directory between root and path.
func ignored(path, root string, matchers map[string]*ignore.GitIgnore) bool {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if matcher, ok := matchers[dir]; ok {
			rel, err := filepath.Rel(dir, path)
			if err == nil && matcher.MatchesPath(filepath.ToSlash(rel)) {
				return true
			}
		}
		if dir == root || dir == filepath.Dir(dir) {
			return false
		}
	}
}
