// Package jobfile reads job definitions out of CI configuration files.
package jobfile

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is a job declared in a configuration file.
type Definition struct {
	Name        string `json:"name"`
	Parent      string `json:"parent,omitempty"`
	Description string `json:"description,omitempty"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
}

type jobNode struct {
	Name        string `yaml:"name"`
	Parent      string `yaml:"parent"`
	Description string `yaml:"description"`
}

var ErrNotAList = errors.New("configuration is not a list")

// Parse returns the job definitions of a configuration file in file order.
// Items other than jobs (projects, pipelines, ...) are ignored.
func Parse(content string) ([]Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return []Definition{}, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return []Definition{}, nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, ErrNotAList
	}

	defs := []Definition{}
	for i, item := range root.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) < 2 {
			continue
		}
		key, value := item.Content[0], item.Content[1]
		if key.Value != "job" || value.Kind != yaml.MappingNode {
			continue
		}

		var job jobNode
		if err := value.Decode(&job); err != nil {
			return nil, fmt.Errorf("failed to decode job at line %d: %w", item.Line, err)
		}
		if job.Name == "" {
			return nil, fmt.Errorf("job at line %d has no name", item.Line)
		}

		def := Definition{
			Name:        job.Name,
			Parent:      job.Parent,
			Description: job.Description,
			LineStart:   item.Line,
		}
		if i+1 < len(root.Content) {
			def.LineEnd = root.Content[i+1].Line - 1
		} else {
			def.LineEnd = lastLine(value)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// lastLine returns the last line occupied by n.
func lastLine(n *yaml.Node) int {
	line := n.Line
	for _, c := range n.Content {
		if l := lastLine(c); l > line {
			line = l
		}
	}
	if n.Kind == yaml.ScalarNode && (n.Style == yaml.LiteralStyle || n.Style == yaml.FoldedStyle) {
		line += strings.Count(strings.TrimRight(n.Value, "\n"), "\n") + 1
	}
	return line
}
