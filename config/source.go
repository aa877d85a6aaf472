package config

// Getter resolves a single configuration key. An empty string means the key
// is not set. *config.Config from the Pulumi SDK satisfies it.
type Getter interface {
	Get(key string) string
}

// MapGetter is a Getter backed by a plain map.
type MapGetter map[string]string

// Get implements Getter.
func (m MapGetter) Get(key string) string {
	return m[key]
}

// Layered returns the first non-empty value found in its getters.
type Layered []Getter

// Get implements Getter.
func (l Layered) Get(key string) string {
	for _, g := range l {
		if g == nil {
			continue
		}
		if v := g.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// Source groups the project namespace with the provider ("aws") namespace.
type Source struct {
	Project  Getter
	Provider Getter
}

// Merge layers sources so that earlier ones take precedence.
func Merge(sources ...Source) Source {
	var project, provider Layered
	for _, s := range sources {
		if s.Project != nil {
			project = append(project, s.Project)
		}
		if s.Provider != nil {
			provider = append(provider, s.Provider)
		}
	}
	return Source{Project: project, Provider: provider}
}

func (s Source) project(key string) string {
	if s.Project == nil {
		return ""
	}
	return s.Project.Get(key)
}

func (s Source) provider(key string) string {
	if s.Provider == nil {
		return ""
	}
	return s.Provider.Get(key)
}
