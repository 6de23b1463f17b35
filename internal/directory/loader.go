package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridassign/gridassign/internal/model"
)

// topologyFile is the on-disk shape of clouds.yaml. Field names mirror
// model.Cloud / model.Site; Parse copies each entry into the model types
// field by field.
type topologyFile struct {
	Clouds []cloudEntry `yaml:"clouds"`
	Sites  []siteEntry  `yaml:"sites"`
}

type cloudEntry struct {
	Name       string   `yaml:"name"`
	Status     string   `yaml:"status"`
	Validation bool     `yaml:"validation"`
	FastTrack  bool     `yaml:"fasttrack"`
	MCShare    float64  `yaml:"mcshare"`
	Source     string   `yaml:"source"`
	Sites      []string `yaml:"sites"`
	Tier1SE    []string `yaml:"tier1_se"`
}

type siteEntry struct {
	Name         string  `yaml:"name"`
	Status       string  `yaml:"status"`
	MaxInputSize float64 `yaml:"max_input_size"`
	Space        float64 `yaml:"space"`
	LFCHost      string  `yaml:"lfc_host"`
	SE           string  `yaml:"se"`
	DDM          string  `yaml:"ddm"`
}

// LoadFile parses a clouds.yaml topology file into a DirectorySnapshot.
func LoadFile(path string) (*model.DirectorySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read topology file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw clouds.yaml bytes into a DirectorySnapshot.
func Parse(data []byte) (*model.DirectorySnapshot, error) {
	var file topologyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("directory: parse topology: %w", err)
	}

	snap := &model.DirectorySnapshot{
		Clouds: make(map[string]model.Cloud, len(file.Clouds)),
		Sites:  make(map[string]model.Site, len(file.Sites)),
	}
	for _, c := range file.Clouds {
		if c.Name == "" {
			return nil, fmt.Errorf("directory: cloud entry missing name")
		}
		snap.Clouds[c.Name] = model.Cloud{
			Name:       c.Name,
			Status:     c.Status,
			Validation: c.Validation,
			FastTrack:  c.FastTrack,
			MCShare:    c.MCShare,
			Source:     c.Source,
			Sites:      c.Sites,
			Tier1SE:    c.Tier1SE,
		}
	}
	for _, s := range file.Sites {
		if s.Name == "" {
			return nil, fmt.Errorf("directory: site entry missing name")
		}
		snap.Sites[s.Name] = model.Site{
			Name:         s.Name,
			Status:       s.Status,
			MaxInputSize: s.MaxInputSize,
			Space:        s.Space,
			LFCHost:      s.LFCHost,
			SE:           s.SE,
			DDM:          s.DDM,
		}
	}
	return snap, nil
}
