package graph

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/chainkit/chainkit/errors"
)

// DefLoader loads pipeline definitions by name.
type DefLoader interface {
	Load(name string) (*PipelineDef, error)
}

// FileDefLoader loads pipeline definitions from YAML files on disk.
type FileDefLoader struct {
	dirs []string
}

// NewFileDefLoader creates a loader that searches the given directories
// for pipeline YAML files.
func NewFileDefLoader(dirs ...string) DefLoader {
	return &FileDefLoader{dirs: dirs}
}

// Load searches for {name}.yaml or {name}.yml across the configured
// directories and their subdirectories.
func (l *FileDefLoader) Load(name string) (*PipelineDef, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			if p, err := loadDefFile(path); err == nil {
				return p, nil
			}

			matches, _ := filepath.Glob(filepath.Join(dir, "**", name+ext))
			for _, match := range matches {
				if p, err := loadDefFile(match); err == nil {
					return p, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("graph: pipeline %q not found in %v", name, l.dirs)
}

func loadDefFile(path string) (*PipelineDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p PipelineDef
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("graph: parsing %s: %w", path, err)
	}
	return &p, nil
}

// LoadDef loads a pipeline definition from explicit file paths, trying
// each until one succeeds.
func LoadDef(name string, paths ...string) (*PipelineDef, error) {
	for _, path := range paths {
		p, err := loadDefFile(path)
		if err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("graph: pipeline %q not found in provided paths", name)
}

// Resolve converts a pipeline definition into an executable Graph,
// expanding includes recursively and looking node implementations up in
// the registry. A circular include or an unknown component is a
// composition error; the resulting graph is validated before return.
func Resolve(p *PipelineDef, registry *Registry, loader DefLoader) (*Graph, error) {
	stack := make(map[string]bool)
	resolved := make(map[string]bool)
	g, err := resolveDef(p, registry, loader, stack, resolved)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func resolveDef(p *PipelineDef, registry *Registry, loader DefLoader, stack, resolved map[string]bool) (*Graph, error) {
	if stack[p.Name] {
		return nil, errors.NewComposition(p.Name, "circular include", p.Name)
	}
	stack[p.Name] = true
	defer delete(stack, p.Name)

	g := New(p.Name)

	for _, includeName := range p.Includes {
		if resolved[includeName] {
			// Already merged via a different branch (diamond include).
			continue
		}

		sub, err := loader.Load(includeName)
		if err != nil {
			return nil, fmt.Errorf("graph: loading include %q: %w", includeName, err)
		}

		subGraph, err := resolveDef(sub, registry, loader, stack, resolved)
		if err != nil {
			return nil, err
		}

		for _, name := range subGraph.order {
			if _, exists := g.Nodes[name]; exists {
				continue
			}
			if err := g.Add(subGraph.Nodes[name]); err != nil {
				return nil, err
			}
		}
		g.Edges = append(g.Edges, subGraph.Edges...)
	}

	for _, def := range p.Nodes {
		if _, exists := g.Nodes[def.Component]; exists {
			continue
		}

		node, ok := registry.Get(def.Component)
		if !ok {
			return nil, errors.NewComposition(p.Name, "component not registered", def.Component)
		}
		if err := g.Add(node); err != nil {
			return nil, err
		}

		for _, dep := range def.DependsOn {
			g.Connect(dep, def.Component)
		}
	}

	resolved[p.Name] = true
	return g, nil
}
