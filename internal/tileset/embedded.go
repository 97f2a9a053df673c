package tileset

import (
	"embed"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embeddedData embed.FS

// LoadEmbedded returns the tile sets shipped with the binary (currently
// just the Esperanto set the original game used), for servers that don't
// configure a custom tile-set directory.
func LoadEmbedded() (*Registry, error) {
	entries, err := embeddedData.ReadDir("data")
	if err != nil {
		return nil, err
	}

	var sets []*Set
	for _, e := range entries {
		data, err := embeddedData.ReadFile("data/" + e.Name())
		if err != nil {
			return nil, err
		}
		var s Set
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		sets = append(sets, &s)
	}

	return NewRegistry(sets), nil
}
