package config

import "gopkg.in/yaml.v3"

// reservedOptionKeys are step option keys with special meaning, pulled
// out of the free-form Options bag before it's handed to the step's
// contract.
var reservedOptionKeys = map[string]bool{
	"_depends": true,
	"_tools":   true,
	"_cores":   true,
}

func parseSteps(n *yaml.Node, prefix string, out map[string]Step) error {
	return walkMapping(n, prefix, func(key, path string, valNode *yaml.Node) error {
		name, moduleClass, err := parseStepKey(key)
		if err != nil {
			return errf(path, "%v", err)
		}
		if reservedStepNames[name] {
			return errf(path, "step name %q is reserved", name)
		}
		if _, dup := out[name]; dup {
			return errf(path, "duplicate step name %q", name)
		}

		step := Step{
			Key:         key,
			Name:        name,
			ModuleClass: moduleClass,
			Options:     map[string]interface{}{},
			CoresHint:   1,
		}

		if valNode.Kind == yaml.NullNode {
			out[name] = step
			return nil
		}

		err = walkMapping(valNode, path, func(optKey, optPath string, v *yaml.Node) error {
			switch optKey {
			case "_depends":
				deps, derr := decodeStringOrList(v, optPath)
				if derr != nil {
					return derr
				}
				step.DependsOn = deps
			case "_tools":
				tools, terr := decodeStringOrList(v, optPath)
				if terr != nil {
					return terr
				}
				step.RequiredTools = tools
			case "_cores":
				return v.Decode(&step.CoresHint)
			default:
				var val interface{}
				if err := v.Decode(&val); err != nil {
					return errf(optPath, "%v", err)
				}
				step.Options[optKey] = val
			}
			return nil
		})
		if err != nil {
			return err
		}

		out[name] = step
		return nil
	})
}
