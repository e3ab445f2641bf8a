package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SaveQueries replaces the queries section of the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveQueries(configPath string, queries []QueryConfig) error {
	return saveSection(configPath, "queries", buildQueriesNode(queries))
}

// AddQuery appends q to existing and saves. An empty ID is filled with a
// short generated one. Returns the saved query.
func AddQuery(configPath string, q QueryConfig, existing []QueryConfig) (QueryConfig, error) {
	if q.ID == "" {
		q.ID = NewQueryID()
	}
	for _, e := range existing {
		if e.ID == q.ID {
			return QueryConfig{}, fmt.Errorf("query id %q already exists", q.ID)
		}
	}
	queries := make([]QueryConfig, 0, len(existing)+1)
	queries = append(queries, existing...)
	queries = append(queries, q)
	if err := SaveQueries(configPath, queries); err != nil {
		return QueryConfig{}, err
	}
	return q, nil
}

// RemoveQuery deletes the query with the given ID and saves.
func RemoveQuery(configPath, id string, existing []QueryConfig) error {
	queries := make([]QueryConfig, 0, len(existing))
	found := false
	for _, q := range existing {
		if q.ID == id {
			found = true
			continue
		}
		queries = append(queries, q)
	}
	if !found {
		return fmt.Errorf("query %q not found", id)
	}
	return SaveQueries(configPath, queries)
}

// SetQueryEnabled toggles a query and saves.
func SetQueryEnabled(configPath, id string, enabled bool, existing []QueryConfig) error {
	queries := make([]QueryConfig, len(existing))
	copy(queries, existing)
	for i := range queries {
		if queries[i].ID == id {
			queries[i].Enabled = &enabled
			return SaveQueries(configPath, queries)
		}
	}
	return fmt.Errorf("query %q not found", id)
}

// NewQueryID returns a short random query ID.
func NewQueryID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// saveSection replaces or appends a top-level key in the config file.
func saveSection(configPath, key string, value *yaml.Node) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: key},
						value,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return fmt.Errorf("parsing config: top level must be a mapping")
		}
		found := false
		for i := 0; i < len(root.Content)-1; i += 2 {
			if root.Content[i].Value == key {
				root.Content[i+1] = value
				found = true
				break
			}
		}
		if !found {
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				value,
			)
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// writeAtomic writes to a temp file in the same directory, then renames.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".issuetree.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// buildQueriesNode creates a yaml.Node representing the queries array.
func buildQueriesNode(queries []QueryConfig) *yaml.Node {
	node := &yaml.Node{
		Kind:    yaml.SequenceNode,
		Content: make([]*yaml.Node, 0, len(queries)),
	}

	for _, q := range queries {
		qNode := &yaml.Node{Kind: yaml.MappingNode}
		appendPair(qNode, "id", q.ID)
		appendPair(qNode, "name", q.Name)
		appendPair(qNode, "query", q.Query)
		if q.SiteID != "" {
			appendPair(qNode, "site_id", q.SiteID)
		}
		if q.Enabled != nil {
			qNode.Content = append(qNode.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: "enabled"},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(*q.Enabled)},
			)
		}
		node.Content = append(node.Content, qNode)
	}

	return node
}

func appendPair(m *yaml.Node, key, value string) {
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value},
	)
}
