package config

import "gopkg.in/yaml.v3"

var lmodKeys = map[string]bool{
	"cmd":         true,
	"module_path": true,
}

func parseLmod(n *yaml.Node, prefix string, out *Lmod) error {
	return walkMapping(n, prefix, func(key, path string, v *yaml.Node) error {
		if !lmodKeys[key] {
			return errf(path, "unrecognized lmod option %q", key)
		}
		var err error
		switch key {
		case "cmd":
			err = decodeScalar(v, path, &out.Cmd)
		case "module_path":
			out.ModulePath, err = decodeStringOrList(v, path)
		}
		return err
	})
}
