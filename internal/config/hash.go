package config

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Hash returns a deterministic fingerprint of the loaded configuration.
// It is embedded in a cluster submission's queued ping file as
// config_hash; `status` and `fix-problems` do not read it back or
// compare it against the current configuration. yaml.v3 marshals map keys in sorted order, so the digest is
// stable across process runs regardless of map iteration order.
func Hash(m *Model) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "marshaling config for hashing")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
