package content

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// SectionFile is the name of the manifest that turns a content directory
// into a section.
const SectionFile = "section.toml"

// slugGroup is the capture group a slug pattern must define.
const slugGroup = "slug"

// Section is the metadata of one content directory. It applies to the
// pages directly inside that directory, not to subdirectories.
type Section struct {
	// Handle is the directory with slashes replaced by underscores; the
	// root section has an empty handle
	Handle string
	// Dir is the directory relative to the content dir, "" for the root
	Dir           string
	Title         string
	Description   string
	LinkText      string
	IndexTemplate string
	SlugPattern   string
	// Hash is the content hash of the manifest
	Hash string

	slug *regexp.Regexp
}

type sectionManifest struct {
	Title         string `toml:"title"`
	Description   string `toml:"description"`
	LinkText      string `toml:"link_text"`
	IndexTemplate string `toml:"index_template"`
	SlugPattern   string `toml:"slug_pattern"`
}

// IsSectionFile reports whether rel under the content dir is a section
// manifest.
func IsSectionFile(rel string) bool {
	return path.Base(rel) == SectionFile
}

// SectionDir is the directory a content-relative path sits in, "" for the
// content root.
func SectionDir(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// ParseSection decodes the manifest at rel.
func ParseSection(rel string, raw []byte, hash string) (*Section, error) {
	var m sectionManifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", rel, err)
	}

	dir := SectionDir(rel)
	s := &Section{
		Handle:        strings.ReplaceAll(dir, "/", "_"),
		Dir:           dir,
		Title:         m.Title,
		Description:   m.Description,
		LinkText:      m.LinkText,
		IndexTemplate: m.IndexTemplate,
		SlugPattern:   m.SlugPattern,
		Hash:          hash,
	}
	if m.SlugPattern != "" {
		re, err := regexp.Compile(m.SlugPattern)
		if err != nil {
			return nil, fmt.Errorf("slug_pattern of %s: %w", rel, err)
		}
		if re.SubexpIndex(slugGroup) < 0 {
			return nil, fmt.Errorf("slug_pattern of %s has no (?P<%s>...) group", rel, slugGroup)
		}
		s.slug = re
	}
	return s, nil
}

// Prefix is the section directory with a trailing slash, "" for the root.
func (s *Section) Prefix() string {
	if s.Dir == "" {
		return ""
	}
	return s.Dir + "/"
}

// ManifestID is the entity id of the manifest governing pages in dir.
func ManifestID(dir string) string {
	if dir == "" {
		return PrefixContentID(SectionFile)
	}
	return PrefixContentID(dir + "/" + SectionFile)
}

// Contains reports whether the content entity id sits directly in the
// section's directory.
func (s *Section) Contains(id string) bool {
	rel, ok := strings.CutPrefix(ParentID(id), contentPrefix)
	if !ok {
		return false
	}
	return SectionDir(rel) == s.Dir
}

// routeSegments matches stem against the slug pattern. Every non-empty
// capture becomes one route segment; the slug group is required to match.
func (s *Section) routeSegments(stem string) ([]string, bool, error) {
	if s == nil || s.slug == nil {
		return nil, false, nil
	}
	m := s.slug.FindStringSubmatch(stem)
	if m == nil {
		return nil, false, nil
	}
	if m[s.slug.SubexpIndex(slugGroup)] == "" {
		return nil, false, fmt.Errorf("slug_pattern %q did not capture a slug from %q", s.SlugPattern, stem)
	}
	var segments []string
	for _, c := range m[1:] {
		if c = Slugify(c); c != "" {
			segments = append(segments, c)
		}
	}
	return segments, true, nil
}
