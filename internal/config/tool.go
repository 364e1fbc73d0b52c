package config

import "gopkg.in/yaml.v3"

var toolKeys = map[string]bool{
	"path":           true,
	"get_version":    true,
	"exit_code":      true,
	"ignore_version": true,
	"module_name":    true,
	"module_load":    true,
	"module_unload":  true,
	"pre_command":    true,
	"post_command":   true,
}

func parseTools(n *yaml.Node, prefix string, out map[string]Tool) error {
	if n.Kind != yaml.MappingNode {
		return errf(prefix, "expected a mapping of tool id to tool options")
	}
	return walkMapping(n, prefix, func(id, path string, valNode *yaml.Node) error {
		t := Tool{ID: id, ExitCode: 0}
		err := walkMapping(valNode, path, func(key, kpath string, v *yaml.Node) error {
			if !toolKeys[key] {
				return errf(kpath, "unrecognized tool option %q", key)
			}
			var err error
			switch key {
			case "path":
				t.Path, err = decodeStringOrList(v, kpath)
			case "get_version":
				t.GetVersion, err = decodeStringOrList(v, kpath)
			case "exit_code":
				err = v.Decode(&t.ExitCode)
			case "ignore_version":
				err = v.Decode(&t.IgnoreVersion)
			case "module_name":
				err = decodeScalar(v, kpath, &t.ModuleName)
			case "module_load":
				t.ModuleLoad, err = decodeStringOrList(v, kpath)
			case "module_unload":
				t.ModuleUnload, err = decodeStringOrList(v, kpath)
			case "pre_command":
				t.PreCommand, err = decodeStringOrList(v, kpath)
			case "post_command":
				t.PostCommand, err = decodeStringOrList(v, kpath)
			}
			return err
		})
		if err != nil {
			return err
		}
		if len(t.Path) == 0 {
			return errf(path, "tool %q missing required \"path\"", id)
		}
		out[id] = t
		return nil
	})
}

// DefaultPOSIXTools returns the source system's default set of common
// utilities, each with ignore_version=true so they participate only
// structurally. Load does not merge this set into a Model's Tools, and
// the tool check runs only the tools the configuration lists.
func DefaultPOSIXTools() map[string]Tool {
	names := []string{"mkdir", "cp", "mv", "rm", "ln", "tar", "gzip", "cat"}
	tools := make(map[string]Tool, len(names))
	for _, name := range names {
		tools[name] = Tool{
			ID:            name,
			Path:          []string{name},
			IgnoreVersion: true,
		}
	}
	return tools
}
