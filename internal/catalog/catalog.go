// Package catalog loads the endpoint catalog: which routes exist, which
// provider model each quality tier maps to, and what each call costs.
// The catalog is loaded once at startup and immutable afterwards.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starkbot-labs/media-gateway/internal/token"
)

const DefaultQuality = "low"

type file struct {
	Endpoints []*Endpoint `yaml:"endpoints"`
}

// Endpoint is one route+quality variant of the catalog.
type Endpoint struct {
	Route           string         `yaml:"route"`
	Quality         string         `yaml:"quality"`
	Path            string         `yaml:"path"`
	Model           string         `yaml:"model"`
	Cost            string         `yaml:"cost"`
	Description     string         `yaml:"description"`
	ResponseURLPath string         `yaml:"response_url_path"`
	RequestParams   map[string]any `yaml:"request_params"`
	DefaultPrompt   string         `yaml:"default_prompt"`
	MediaType       string         `yaml:"media_type"`
	OutputExtension string         `yaml:"output_extension"`
	PostProcess     *PostProcess   `yaml:"post_process"`

	// RawCost is Cost converted to raw token units at load time.
	RawCost string `yaml:"-"`
}

// PostProcess describes an optional ffmpeg transcoding step applied to the
// provider's output before upload.
type PostProcess struct {
	InputExtension string   `yaml:"input_extension"`
	FFmpegArgs     []string `yaml:"ffmpeg_args"`
}

// QualityMap maps a quality tier name to its endpoint definition.
type QualityMap map[string]*Endpoint

type Catalog struct {
	routes map[string]QualityMap
	all    []*Endpoint
}

// Load reads and validates the catalog file, converting each human-readable
// cost to raw units using the configured token decimals.
func Load(path string, tokenDecimals int) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoints config %s: %w", path, err)
	}
	return Parse(content, tokenDecimals)
}

func Parse(content []byte, tokenDecimals int) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parse endpoints config: %w", err)
	}
	if len(f.Endpoints) == 0 {
		return nil, fmt.Errorf("endpoints config defines no endpoints")
	}

	c := &Catalog{routes: make(map[string]QualityMap)}
	for _, ep := range f.Endpoints {
		if ep.Route == "" || ep.Path == "" || ep.Model == "" {
			return nil, fmt.Errorf("endpoint missing route, path or model: %+v", ep)
		}
		if ep.Quality == "" {
			ep.Quality = DefaultQuality
		}
		raw, err := token.ToRawUnits(ep.Cost, tokenDecimals)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: bad cost: %w", ep.Path, err)
		}
		ep.RawCost = raw

		if c.routes[ep.Route] == nil {
			c.routes[ep.Route] = make(QualityMap)
		}
		if _, dup := c.routes[ep.Route][ep.Quality]; dup {
			return nil, fmt.Errorf("duplicate endpoint %s quality %s", ep.Route, ep.Quality)
		}
		c.routes[ep.Route][ep.Quality] = ep
		c.all = append(c.all, ep)
	}
	return c, nil
}

// Route returns the quality map for a route.
func (c *Catalog) Route(route string) (QualityMap, bool) {
	qm, ok := c.routes[route]
	return qm, ok
}

// Routes returns all configured route names, sorted.
func (c *Catalog) Routes() []string {
	names := make([]string, 0, len(c.routes))
	for r := range c.routes {
		names = append(names, r)
	}
	sort.Strings(names)
	return names
}

// All returns every endpoint variant in catalog order.
func (c *Catalog) All() []*Endpoint {
	return c.all
}

// Qualities returns the valid quality names for a map, sorted.
func (qm QualityMap) Qualities() []string {
	names := make([]string, 0, len(qm))
	for q := range qm {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}

// PathSegment is the endpoint path without the leading slash, used to build
// storage keys.
func (e *Endpoint) PathSegment() string {
	return strings.TrimPrefix(e.Path, "/")
}

// ContentType maps the output extension to a MIME type.
func (e *Endpoint) ContentType() string {
	switch e.OutputExtension {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
