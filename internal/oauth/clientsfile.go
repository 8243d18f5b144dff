package oauth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// staticClientsFile is the shape of the optional operator-supplied client
// preload file: a list of trusted clients to register at startup instead
// of (or alongside) Dynamic Client Registration.
type staticClientsFile struct {
	Clients []struct {
		ID           string   `yaml:"client_id"`
		Secret       string   `yaml:"client_secret"`
		Name         string   `yaml:"client_name"`
		RedirectURIs []string `yaml:"redirect_uris"`
	} `yaml:"clients"`
}

// LoadClientsFile reads a YAML file of statically-registered OAuth clients
// and installs them in store, for operators who want a fixed set of
// trusted clients. POST /register stays available alongside them; loading
// a clients file does not disable Dynamic Client Registration.
func LoadClientsFile(store *Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read clients file: %w", err)
	}

	var parsed staticClientsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return 0, fmt.Errorf("parse clients file: %w", err)
	}

	for _, c := range parsed.Clients {
		if c.ID == "" || c.Secret == "" || len(c.RedirectURIs) == 0 {
			return 0, fmt.Errorf("clients file: entry %q missing client_id, client_secret, or redirect_uris", c.Name)
		}
		store.RegisterStaticClient(c.ID, c.Secret, c.Name, c.RedirectURIs)
	}
	return len(parsed.Clients), nil
}
