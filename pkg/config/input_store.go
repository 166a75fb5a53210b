package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// InputUpdater persists changes to a configured input. The credential
// manager uses it to replace a literal password with the mask sentinel.
type InputUpdater interface {
	UpdateInput(ctx context.Context, kind, name string, updates map[string]string) error
}

// FileInputStore updates inputs in the YAML file they were loaded from.
// Edits go through the document node tree, so comments, key order and
// unrelated ${VAR} references survive the rewrite.
type FileInputStore struct {
	path string
	mu   sync.Mutex
}

// NewFileInputStore creates an updater for the config file at path
func NewFileInputStore(path string) *FileInputStore {
	return &FileInputStore{path: path}
}

// UpdateInput sets each key in updates on inputs[kind://name]
func (s *FileInputStore) UpdateInput(_ context.Context, kind, name string, updates map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("config file %s is empty", s.path)
	}

	inputs := mappingValue(doc.Content[0], "inputs")
	if inputs == nil {
		return fmt.Errorf("config file %s has no inputs section", s.path)
	}
	full := kind + "://" + name
	input := mappingValue(inputs, full)
	if input == nil {
		return fmt.Errorf("input %s not found in %s", full, s.path)
	}

	for key, value := range updates {
		setMappingValue(input, key, value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	return writeFileAtomic(s.path, buf.Bytes(), info.Mode().Perm())
}

// mappingValue returns the value node for key in a mapping node
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func setMappingValue(node *yaml.Node, key, value string) {
	if v := mappingValue(node, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!str"
		v.Value = value
		v.Style = 0
		v.Content = nil
		return
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// MemoryInputStore records input updates in memory. It serves runs whose
// configuration is not backed by a file, such as flag-only invocations.
type MemoryInputStore struct {
	mu      sync.Mutex
	updates map[string]map[string]string
}

// NewMemoryInputStore creates an empty in-memory updater
func NewMemoryInputStore() *MemoryInputStore {
	return &MemoryInputStore{updates: make(map[string]map[string]string)}
}

// UpdateInput records updates for kind://name
func (s *MemoryInputStore) UpdateInput(_ context.Context, kind, name string, updates map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := kind + "://" + name
	if s.updates[full] == nil {
		s.updates[full] = make(map[string]string)
	}
	for k, v := range updates {
		s.updates[full][k] = v
	}
	return nil
}

// Updates returns a copy of the updates recorded for a full input name
func (s *MemoryInputStore) Updates(full string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.updates[full]))
	for k, v := range s.updates[full] {
		out[k] = v
	}
	return out
}
