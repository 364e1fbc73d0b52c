package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// topLevelKeys is the fixed recognized key set for a pipeline config
// document (§4.2). Anything else at the top level is a fatal ConfigError.
var topLevelKeys = map[string]bool{
	"destination_path":       true,
	"constants":              true,
	"cluster":                true,
	"steps":                  true,
	"lmod":                   true,
	"tools":                  true,
	"base_working_directory": true,
	"id":                     true,
	"notify":                 true,
	// present only on a persisted annotation document, lifted before
	// the rest of this key set is validated.
	"config": true,
}

var stepKeyPattern = regexp.MustCompile(`^\s*([A-Za-z_][\w-]*)\s*(?:\(\s*([A-Za-z_][\w-]*)\s*\))?\s*$`)

// Load reads and validates a pipeline configuration document from path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errf("", "parsing yaml: %v", err)
	}
	if len(root.Content) == 0 {
		return nil, errf("", "empty configuration document")
	}
	doc := root.Content[0]

	// If this is a persisted annotation rather than a pipeline config,
	// lift the embedded `config` subtree and re-root its destination two
	// levels up (annotations live at destination/<step>/<run>/).
	baseDir := filepath.Dir(path)
	isAnnotation := false
	if embedded, ok := mappingValue(doc, "config"); ok {
		doc = embedded
		isAnnotation = true
	}

	m := &Model{
		Constants: map[string]interface{}{},
		Tools:     map[string]Tool{},
		Steps:     map[string]Step{},
	}

	if err := walkMapping(doc, "", func(key string, path string, valNode *yaml.Node) error {
		if !topLevelKeys[key] {
			return errf(path, "unrecognized top-level key %q", key)
		}
		switch key {
		case "config":
			return nil // already lifted
		case "destination_path":
			return decodeScalar(valNode, path, &m.DestinationPath)
		case "base_working_directory":
			return decodeScalar(valNode, path, &m.BaseWorkingDirectory)
		case "id":
			return decodeScalar(valNode, path, &m.ID)
		case "notify":
			return decodeScalar(valNode, path, &m.Notify)
		case "constants":
			return valNode.Decode(&m.Constants)
		case "lmod":
			return parseLmod(valNode, path, &m.Lmod)
		case "tools":
			return parseTools(valNode, path, m.Tools)
		case "cluster":
			return parseCluster(valNode, path, &m.Cluster)
		case "steps":
			return parseSteps(valNode, path, m.Steps)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if m.BaseWorkingDirectory == "" {
		m.BaseWorkingDirectory = baseDir
	}
	if !filepath.IsAbs(m.BaseWorkingDirectory) {
		m.BaseWorkingDirectory = filepath.Join(baseDir, m.BaseWorkingDirectory)
	}
	if m.DestinationPath != "" && !filepath.IsAbs(m.DestinationPath) {
		m.DestinationPath = filepath.Join(m.BaseWorkingDirectory, m.DestinationPath)
	}
	if isAnnotation {
		m.DestinationPath = filepath.Dir(filepath.Dir(baseDir))
	}

	applyEnvOverlay(m)

	if m.DestinationPath == "" {
		return nil, errf("destination_path", "destination_path is required")
	}

	return m, nil
}

// LoadRerootedFromAnnotation loads a config embedded in an annotation
// file, re-rooting destination_path two directory levels above the
// annotation's own location (destination/<step>/<run>/.annotation.yaml
// -> destination).
func LoadRerootedFromAnnotation(annotationPath string) (*Model, error) {
	m, err := Load(annotationPath)
	if err != nil {
		return nil, err
	}
	m.DestinationPath = filepath.Dir(filepath.Dir(filepath.Dir(annotationPath)))
	return m, nil
}

// applyEnvOverlay layers FLOWCTL_* and LMOD_* environment variables over
// scalar settings the way the teacher's viper-backed config does,
// without requiring them to appear in the document at all.
func applyEnvOverlay(m *Model) {
	v := viper.New()
	v.SetEnvPrefix("FLOWCTL")
	v.AutomaticEnv()

	if dp := v.GetString("destination_path"); dp != "" {
		m.DestinationPath = dp
	}
	if q := v.GetInt("default_job_quota"); q != 0 {
		m.Cluster.DefaultJobQuota = q
	}
	if ct := v.GetString("cluster_type"); ct != "" {
		m.Cluster.Type = ct
	}
	if m.Lmod.Cmd == "" {
		if cmd := os.Getenv("LMOD_CMD"); cmd != "" {
			m.Lmod.Cmd = cmd
		}
	}
	if len(m.Lmod.ModulePath) == 0 {
		if mp := os.Getenv("MODULEPATH"); mp != "" {
			m.Lmod.ModulePath = strings.Split(mp, string(os.PathListSeparator))
		}
	}
}

// mappingValue returns the value node for key in a mapping node.
func mappingValue(n *yaml.Node, key string) (*yaml.Node, bool) {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1], true
		}
	}
	return nil, false
}

// walkMapping calls fn for every key/value pair of a mapping node, with
// a dotted path for error reporting.
func walkMapping(n *yaml.Node, prefix string, fn func(key, path string, val *yaml.Node) error) error {
	if n.Kind != yaml.MappingNode {
		return errf(prefix, "expected a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		path := keyNode.Value
		if prefix != "" {
			path = prefix + "." + keyNode.Value
		}
		if err := fn(keyNode.Value, path, valNode); err != nil {
			return err
		}
	}
	return nil
}

func decodeScalar(n *yaml.Node, path string, out *string) error {
	if n.Kind != yaml.ScalarNode {
		return errf(path, "expected a scalar value")
	}
	return n.Decode(out)
}

// decodeStringOrList accepts either a bare scalar or a sequence of
// scalars, normalizing both to a string slice. Several §6 fields (tool
// `path`, `pre_command`, cluster `submit`, ...) use this grammar.
func decodeStringOrList(n *yaml.Node, path string) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		var s string
		if err := n.Decode(&s); err != nil {
			return nil, errf(path, "%v", err)
		}
		return []string{s}, nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return nil, errf(path, "%v", err)
		}
		return list, nil
	default:
		return nil, errf(path, "expected a string or list of strings")
	}
}

func parseStepKey(key string) (name, moduleClass string, err error) {
	m := stepKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", "", fmt.Errorf("malformed step key %q, expected identifier or identifier(module)", key)
	}
	name = m[1]
	moduleClass = m[2]
	if moduleClass == "" {
		moduleClass = name
	}
	return name, moduleClass, nil
}
