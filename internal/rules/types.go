package rules

// #region imports
import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// #endregion

// #region kind

// Kind selects the evaluation strategy of a rule.
type Kind string

const (
	KindObject    Kind = "object"
	KindProximity Kind = "proximity"
	KindText      Kind = "text"
)

// #endregion

// #region severity

// Severity of the nudges a rule produces.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// #endregion

// #region constants

const (
	// SourceDroppedObjects is the only subject source for object and proximity rules.
	SourceDroppedObjects = "droppedObjects"

	// AnyType in Subject.WhereType matches every placed object.
	AnyType = "anything"

	// DefaultThresholdFeet applies to proximity rules with no threshold.
	DefaultThresholdFeet = 10.0

	// DefaultRegexFlags applies to text rules with no flags.
	DefaultRegexFlags = "i"

	// MatchModeRegex is the only supported text match mode.
	MatchModeRegex = "regex"
)

// ErrInvalidRule wraps every validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// #endregion

// #region rule

// Rule is a sealed union of ObjectRule, ProximityRule and TextRule.
// Callers dispatch with a type switch over the concrete types.
type Rule interface {
	Info() Base
	Kind() Kind
	Validate() error
	sealed()
}

// Base holds the metadata every rule carries.
type Base struct {
	ID          string
	Severity    Severity
	Message     string // ${name} template
	CitationURL string
	Actions     []string
}

// Info returns the rule's shared metadata.
func (b Base) Info() Base { return b }

func (b Base) validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	switch b.Severity {
	case "", SeverityInfo, SeverityWarning:
	default:
		return fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidRule, b.ID, b.Severity)
	}
	return nil
}

// SeverityOr returns the rule severity, or def when unset.
func (b Base) SeverityOr(def Severity) Severity {
	if b.Severity == "" {
		return def
	}
	return b.Severity
}

// #endregion

// #region subject

// Subject selects placed objects by type.
type Subject struct {
	SourceKind string
	WhereType  string
}

// Matches reports whether an object of the given type is a subject.
func (s Subject) Matches(objectType string) bool {
	return s.WhereType == AnyType || s.WhereType == objectType
}

func (s Subject) validate(id string) error {
	if s.SourceKind != "" && s.SourceKind != SourceDroppedObjects {
		return fmt.Errorf("%w: %s: unsupported subject source %q", ErrInvalidRule, id, s.SourceKind)
	}
	if s.WhereType == "" {
		return fmt.Errorf("%w: %s: subject.whereType required", ErrInvalidRule, id)
	}
	return nil
}

// #endregion

// #region object-rule

// ObjectRule fires once per placed object of the subject type.
type ObjectRule struct {
	Base
	Subject Subject
}

func (ObjectRule) Kind() Kind { return KindObject }
func (ObjectRule) sealed()    {}

// Validate checks required fields.
func (r ObjectRule) Validate() error {
	if err := r.Base.validate(); err != nil {
		return err
	}
	return r.Subject.validate(r.ID)
}

// #endregion

// #region proximity-rule

// Target names the infrastructure layer a proximity rule measures against.
type Target struct {
	LayerID string
}

// ProximityRule fires when a subject's nearest target feature is closer than ThresholdFeet.
type ProximityRule struct {
	Base
	Subject       Subject
	Target        Target
	ThresholdFeet float64
}

func (ProximityRule) Kind() Kind { return KindProximity }
func (ProximityRule) sealed()    {}

// Threshold returns ThresholdFeet, or DefaultThresholdFeet when unset.
func (r ProximityRule) Threshold() float64 {
	if r.ThresholdFeet <= 0 {
		return DefaultThresholdFeet
	}
	return r.ThresholdFeet
}

// Validate checks required fields.
func (r ProximityRule) Validate() error {
	if err := r.Base.validate(); err != nil {
		return err
	}
	if err := r.Subject.validate(r.ID); err != nil {
		return err
	}
	if r.Target.LayerID == "" {
		return fmt.Errorf("%w: %s: target.layerId required", ErrInvalidRule, r.ID)
	}
	if r.ThresholdFeet < 0 {
		return fmt.Errorf("%w: %s: negative thresholdFeet", ErrInvalidRule, r.ID)
	}
	return nil
}

// #endregion

// #region text-rule

// Match is a regex over drawn-shape labels.
type Match struct {
	Mode    string
	Pattern string
	Flags   string
}

// Compile builds the regexp, translating JS-style flags into an inline group.
// g, u and y have no RE2 meaning and are ignored.
func (m Match) Compile() (*regexp.Regexp, error) {
	if m.Mode != "" && m.Mode != MatchModeRegex {
		return nil, fmt.Errorf("unsupported match mode %q", m.Mode)
	}
	if m.Pattern == "" {
		return nil, errors.New("empty pattern")
	}
	flags := m.Flags
	if flags == "" {
		flags = DefaultRegexFlags
	}
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	expr := m.Pattern
	if inline.Len() > 0 {
		expr = "(?" + inline.String() + ")" + expr
	}
	return regexp.Compile(expr)
}

// TextRule fires on the first regex match in a drawn shape's label.
type TextRule struct {
	Base
	Match Match
}

func (TextRule) Kind() Kind { return KindText }
func (TextRule) sealed()    {}

// Validate checks required fields and that the pattern compiles.
func (r TextRule) Validate() error {
	if err := r.Base.validate(); err != nil {
		return err
	}
	if _, err := r.Match.Compile(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRule, r.ID, err)
	}
	return nil
}

// #endregion

// #region helpers

// ProximityLayers returns the distinct target layers of all proximity rules
// in catalog order.
func ProximityLayers(catalog []Rule) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range catalog {
		pr, ok := r.(ProximityRule)
		if !ok || pr.Target.LayerID == "" || seen[pr.Target.LayerID] {
			continue
		}
		seen[pr.Target.LayerID] = true
		out = append(out, pr.Target.LayerID)
	}
	return out
}

// ValidateCatalog validates every rule and checks id uniqueness.
// All problems are returned joined.
func ValidateCatalog(catalog []Rule) error {
	var errs []error
	ids := make(map[string]bool, len(catalog))
	for i, r := range catalog {
		if r == nil {
			errs = append(errs, fmt.Errorf("%w: rule %d is nil", ErrInvalidRule, i))
			continue
		}
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		id := r.Info().ID
		if ids[id] {
			errs = append(errs, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, id))
		}
		ids[id] = true
	}
	return errors.Join(errs...)
}

// #endregion
