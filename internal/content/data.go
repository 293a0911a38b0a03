package content

import (
	"fmt"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DataExtensions lists the file extensions accepted under the data dir.
var DataExtensions = []string{".yaml", ".yml", ".json", ".toml"}

// IsDataFile reports whether rel has a supported data extension.
func IsDataFile(rel string) bool {
	ext := strings.ToLower(path.Ext(rel))
	for _, e := range DataExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// DataStem is rel without its extension, e.g. "blog/authors".
func DataStem(rel string) string {
	return strings.TrimSuffix(rel, path.Ext(rel))
}

// DataBinding is the name templates use for a data file: its stem with
// slashes replaced by underscores.
func DataBinding(rel string) string {
	return strings.ReplaceAll(DataStem(rel), "/", "_")
}

// DecodeData parses a data file by extension. JSON is decoded with the
// YAML decoder, which accepts it as a subset.
func DecodeData(rel string, raw []byte) (any, error) {
	var value any
	switch strings.ToLower(path.Ext(rel)) {
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rel, err)
		}
	case ".toml":
		fields := map[string]any{}
		if err := toml.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rel, err)
		}
		value = fields
	default:
		return nil, fmt.Errorf("unsupported data format %q", path.Ext(rel))
	}
	return value, nil
}
