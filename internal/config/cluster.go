package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var clusterKeys = map[string]bool{
	"type":              true,
	"default_job_quota": true,
}

var clusterCommandKeys = map[string]bool{
	"identity_test":   true,
	"identity_answer": true,
	"stat":            true,
	"submit":          true,
	"default_options": true,
}

func parseCluster(n *yaml.Node, prefix string, out *Cluster) error {
	out.Commands = map[string]ClusterCommands{}
	return walkMapping(n, prefix, func(key, path string, v *yaml.Node) error {
		if !clusterKeys[key] {
			return errf(path, "unrecognized cluster option %q", key)
		}
		var err error
		switch key {
		case "type":
			err = decodeScalar(v, path, &out.Type)
		case "default_job_quota":
			err = v.Decode(&out.DefaultJobQuota)
		}
		return err
	})
}

// LoadClusterCommandTable parses the second document referenced by §6
// "Cluster command table": a mapping from cluster-type to the argv
// fragments the orchestrator uses to identify, stat, and submit to that
// cluster type. Required entries per cluster type: identity_test,
// identity_answer, stat, submit, default_options.
func LoadClusterCommandTable(path string) (map[string]ClusterCommands, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading cluster command table %s", path)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errf("", "parsing cluster command table yaml: %v", err)
	}
	if len(root.Content) == 0 {
		return map[string]ClusterCommands{}, nil
	}
	doc := root.Content[0]

	table := map[string]ClusterCommands{}
	err = walkMapping(doc, "", func(clusterType, path string, v *yaml.Node) error {
		cmds, perr := parseClusterCommands(v, path)
		if perr != nil {
			return perr
		}
		required := map[string][]string{
			"identity_test":   cmds.IdentityTest,
			"identity_answer": cmds.IdentityAnswer,
			"stat":             cmds.Stat,
			"submit":           cmds.Submit,
		}
		for name, val := range required {
			if len(val) == 0 {
				return errf(path, "cluster type %q missing required %q", clusterType, name)
			}
		}
		if _, ok := mappingValue(v, "default_options"); !ok {
			return errf(path, "cluster type %q missing required %q", clusterType, "default_options")
		}
		table[clusterType] = cmds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

func parseClusterCommands(n *yaml.Node, prefix string) (ClusterCommands, error) {
	var cmds ClusterCommands
	err := walkMapping(n, prefix, func(key, path string, v *yaml.Node) error {
		if !clusterCommandKeys[key] {
			return errf(path, "unrecognized cluster command %q", key)
		}
		var err error
		switch key {
		case "identity_test":
			cmds.IdentityTest, err = decodeStringOrList(v, path)
		case "identity_answer":
			cmds.IdentityAnswer, err = decodeStringOrList(v, path)
		case "stat":
			cmds.Stat, err = decodeStringOrList(v, path)
		case "submit":
			cmds.Submit, err = decodeStringOrList(v, path)
		case "default_options":
			err = decodeScalar(v, path, &cmds.DefaultOptions)
		}
		return err
	})
	return cmds, err
}

// SelectClusterType resolves "auto" selection by probing each cluster
// type's identity_test and matching stdout against identity_answer
// prefixes. probe is injected so callers can run the actual subprocess
// via internal/process.
func SelectClusterType(clusterType string, table map[string]ClusterCommands, probe func(argv []string) (string, error)) (string, error) {
	if clusterType != "auto" {
		if _, ok := table[clusterType]; !ok {
			return "", errf("cluster.type", "unknown cluster type %q", clusterType)
		}
		return clusterType, nil
	}
	for candidate, cmds := range table {
		if len(cmds.IdentityTest) == 0 {
			continue
		}
		out, err := probe(cmds.IdentityTest)
		if err != nil {
			continue
		}
		for _, answer := range cmds.IdentityAnswer {
			if hasPrefix(out, answer) {
				return candidate, nil
			}
		}
	}
	return "", errf("cluster.type", "auto cluster selection matched no configured cluster type")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
