package services

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/athapong/docfuse/pkg/layout"
	"github.com/athapong/docfuse/pkg/parser"
	"github.com/pkg/errors"
)

var htmlExtensions = map[string]bool{
	".html": true, ".htm": true, ".xhtml": true,
}

// LoadSources reads every HTML file named by paths; directories are walked.
// A document's PDF and layout are looked up next to it as <name>.pdf and
// <name>.layout.json. Documents are named after the file without extension.
func LoadSources(paths []string) ([]parser.Source, map[string]*layout.Layout, error) {
	var files []string
	for _, p := range paths {
		found, err := htmlFiles(p)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, nil, errors.Errorf("no HTML files found in %v", paths)
	}
	sort.Strings(files)

	sources := make([]parser.Source, 0, len(files))
	layouts := make(map[string]*layout.Layout)
	seen := make(map[string]string, len(files))
	for _, file := range files {
		name := DocumentName(file)
		if prev, ok := seen[name]; ok {
			if prev == file {
				continue
			}
			return nil, nil, errors.Errorf("document name %s used by both %s and %s", name, prev, file)
		}
		seen[name] = file

		html, err := os.ReadFile(file)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read %s", file)
		}
		src := parser.Source{Name: name, Path: file, HTML: html}

		base := strings.TrimSuffix(file, filepath.Ext(file))
		if data, err := os.ReadFile(base + ".pdf"); err == nil {
			src.PDF = data
		} else if !os.IsNotExist(err) {
			return nil, nil, errors.Wrapf(err, "read %s.pdf", base)
		}
		if data, err := os.ReadFile(base + ".layout.json"); err == nil {
			l, err := layout.ParseLayoutJSON(data)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "parse %s.layout.json", base)
			}
			layouts[name] = l
		} else if !os.IsNotExist(err) {
			return nil, nil, errors.Wrapf(err, "read %s.layout.json", base)
		}
		sources = append(sources, src)
	}
	return sources, layouts, nil
}

// DocumentName derives a document name from its file path
func DocumentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func htmlFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && htmlExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, errors.Wrapf(err, "walk %s", root)
}
