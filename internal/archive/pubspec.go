package archive

import (
	"gopkg.in/yaml.v3"

	"github.com/pubregistry/registry"
)

// rawDependency mirrors one pubspec dependency entry's several shapes:
// a bare version constraint string, or a map with one of
// git/path/hosted.
type rawDependency struct {
	Constraint string
	Git        string
	Path       string
	Hosted     string
}

func (d *rawDependency) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&d.Constraint)
	}
	var m struct {
		Git    any    `yaml:"git"`
		Path   string `yaml:"path"`
		Hosted any    `yaml:"hosted"`
	}
	if err := n.Decode(&m); err != nil {
		return err
	}
	if s, ok := m.Git.(string); ok {
		d.Git = s
	} else if m.Git != nil {
		d.Git = "." // present but structured (url: ...); non-empty marks it a git dep
	}
	d.Path = m.Path
	if s, ok := m.Hosted.(string); ok {
		d.Hosted = s
	}
	return nil
}

type rawPubspec struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Homepage    string `yaml:"homepage"`
	Repository  string `yaml:"repository"`
	License     string `yaml:"license"`
	Environment struct {
		SDK string `yaml:"sdk"`
	} `yaml:"environment"`
	Dependencies    map[string]rawDependency `yaml:"dependencies"`
	DevDependencies map[string]rawDependency `yaml:"dev_dependencies"`
	Executables     map[string]string        `yaml:"executables"`
}

// decodePubspec parses raw pubspec.yaml bytes into the domain Pubspec
// type, flattening the environment.sdk nesting and dependency variants
// the yaml permits.
func decodePubspec(raw []byte) (registry.Pubspec, error) {
	var rp rawPubspec
	if err := yaml.Unmarshal(raw, &rp); err != nil {
		return registry.Pubspec{}, err
	}
	p := registry.Pubspec{
		Name:          rp.Name,
		Version:       rp.Version,
		Description:   rp.Description,
		Homepage:      rp.Homepage,
		Repository:    rp.Repository,
		License:       rp.License,
		SDKConstraint: rp.Environment.SDK,
		Executables:   rp.Executables,
	}
	if len(rp.Dependencies) > 0 {
		p.Dependencies = make(map[string]registry.Dependency, len(rp.Dependencies))
		for name, d := range rp.Dependencies {
			p.Dependencies[name] = registry.Dependency{
				VersionConstraint: d.Constraint,
				GitURL:            d.Git,
				PathDependency:    d.Path,
				Hosted:            d.Hosted,
			}
		}
	}
	if len(rp.DevDependencies) > 0 {
		p.DevDependencies = make(map[string]registry.Dependency, len(rp.DevDependencies))
		for name, d := range rp.DevDependencies {
			p.DevDependencies[name] = registry.Dependency{
				VersionConstraint: d.Constraint,
				GitURL:            d.Git,
				PathDependency:    d.Path,
				Hosted:            d.Hosted,
			}
		}
	}
	return p, nil
}
