package rules

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region file-types

// CatalogFile is the top-level YAML structure of a rule catalog.
type CatalogFile struct {
	Version int        `yaml:"version"`
	Rules   []FileRule `yaml:"rules"`
}

// FileRule is one rule as written in YAML, in the map app's authoring
// format so existing catalogs load unchanged.
type FileRule struct {
	ID            string       `yaml:"id"`
	Type          Kind         `yaml:"type"`
	Severity      Severity     `yaml:"severity,omitempty"`
	Message       string       `yaml:"message"`
	Subject       *FileSubject `yaml:"subject,omitempty"`
	Source        *FileSource  `yaml:"source,omitempty"`
	Target        *FileTarget  `yaml:"target,omitempty"`
	ThresholdFeet float64      `yaml:"thresholdFeet,omitempty"`
	Match         *FileMatch   `yaml:"match,omitempty"`
	Citation      string       `yaml:"citation,omitempty"`
	Actions       []string     `yaml:"actions,omitempty"`
}

// FileSubject mirrors Subject.
type FileSubject struct {
	Source string `yaml:"source"`
	Where  struct {
		Type string `yaml:"type"`
	} `yaml:"where"`
}

// FileSource documents where a text rule reads its labels. Only
// customShapes/properties.label is supported; the block is informational.
type FileSource struct {
	Kind  string `yaml:"kind"`
	Field string `yaml:"field"`
}

// FileTarget mirrors Target.
type FileTarget struct {
	Source  string `yaml:"source,omitempty"`
	LayerID string `yaml:"layerId"`
}

// FileMatch mirrors Match.
type FileMatch struct {
	Mode    string `yaml:"mode"`
	Pattern string `yaml:"pattern"`
	Flags   string `yaml:"flags,omitempty"`
}

// #endregion file-types

// #region loader

// LoadFile reads and validates a YAML rule catalog.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes a YAML catalog, converts it to rules and validates the result.
func Parse(data []byte) ([]Rule, error) {
	var f CatalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	catalog := make([]Rule, 0, len(f.Rules))
	for i, fr := range f.Rules {
		r, err := fr.ToRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		catalog = append(catalog, r)
	}
	if err := ValidateCatalog(catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

// ToRule converts a FileRule into its concrete rule type.
func (fr FileRule) ToRule() (Rule, error) {
	base := Base{
		ID:          fr.ID,
		Severity:    fr.Severity,
		Message:     fr.Message,
		CitationURL: fr.Citation,
		Actions:     fr.Actions,
	}
	switch fr.Type {
	case KindObject:
		return ObjectRule{Base: base, Subject: fr.Subject.toSubject()}, nil
	case KindProximity:
		r := ProximityRule{Base: base, Subject: fr.Subject.toSubject(), ThresholdFeet: fr.ThresholdFeet}
		if fr.Target != nil {
			r.Target = Target{LayerID: fr.Target.LayerID}
		}
		return r, nil
	case KindText:
		r := TextRule{Base: base}
		if fr.Match != nil {
			r.Match = Match{Mode: fr.Match.Mode, Pattern: fr.Match.Pattern, Flags: fr.Match.Flags}
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown type %q", ErrInvalidRule, fr.ID, fr.Type)
	}
}

func (s *FileSubject) toSubject() Subject {
	if s == nil {
		return Subject{}
	}
	return Subject{SourceKind: s.Source, WhereType: s.Where.Type}
}

// #endregion loader

// #region export

// ToFile converts a catalog back into its YAML form.
func ToFile(catalog []Rule) CatalogFile {
	out := CatalogFile{Version: 1, Rules: make([]FileRule, 0, len(catalog))}
	for _, r := range catalog {
		b := r.Info()
		fr := FileRule{
			ID:       b.ID,
			Type:     r.Kind(),
			Severity: b.Severity,
			Message:  b.Message,
			Citation: b.CitationURL,
			Actions:  b.Actions,
		}
		switch t := r.(type) {
		case ObjectRule:
			fr.Subject = fileSubject(t.Subject)
		case ProximityRule:
			fr.Subject = fileSubject(t.Subject)
			fr.Target = &FileTarget{Source: "infrastructure", LayerID: t.Target.LayerID}
			fr.ThresholdFeet = t.ThresholdFeet
		case TextRule:
			fr.Source = &FileSource{Kind: "customShapes", Field: "properties.label"}
			fr.Match = &FileMatch{Mode: t.Match.Mode, Pattern: t.Match.Pattern, Flags: t.Match.Flags}
		}
		out.Rules = append(out.Rules, fr)
	}
	return out
}

// Marshal renders a catalog as YAML.
func Marshal(catalog []Rule) ([]byte, error) {
	return yaml.Marshal(ToFile(catalog))
}

func fileSubject(s Subject) *FileSubject {
	fs := &FileSubject{Source: s.SourceKind}
	fs.Where.Type = s.WhereType
	return fs
}

// #endregion export
