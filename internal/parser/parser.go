// Package parser splits YAML frontmatter from Markdown documents.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
}

// Parse separates frontmatter from body. Invalid YAML is not an error: the
// whole input is returned as body.
func Parse(data []byte) (*Result, error) {
	block, body, ok := splitFrontmatter(data)
	if !ok {
		return &Result{Body: string(data)}, nil
	}
	var fm map[string]interface{}
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return &Result{Body: string(data)}, nil
	}
	return &Result{Frontmatter: fm, Body: body}, nil
}

// Decode unmarshals the frontmatter into v and returns the body. Unlike Parse,
// malformed YAML is reported.
func Decode(data []byte, v any) (string, error) {
	block, body, ok := splitFrontmatter(data)
	if !ok {
		return string(data), nil
	}
	if err := yaml.Unmarshal(block, v); err != nil {
		return "", fmt.Errorf("parser: frontmatter: %w", err)
	}
	return body, nil
}

// splitFrontmatter returns the YAML block between leading --- delimiters and
// the body after the closing one. ok is false when there is no frontmatter.
func splitFrontmatter(data []byte) (block []byte, body string, ok bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", false
	}

	afterDelim := rest[idx+1+len(delim):]
	return rest[:idx], strings.TrimLeft(string(afterDelim), "\n\r"), true
}
