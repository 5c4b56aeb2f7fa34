package rules

// #region citations

const (
	citeBarbecuing    = "https://www.nyc.gov/site/parks/permits/barbecuing.page"
	citeParksRules    = "https://www.nyc.gov/site/parks/rules/parks-rules.page"
	citeTreeFastening = "https://www.nycgovparks.org/rules/section-1-04e"
	citeFDNYPermits   = "https://www.nyc.gov/site/fdny/about/resources/code-regulations/permit-requirements.page"
	citeSoundDevice   = "https://portal.311.nyc.gov/article/?kanumber=KA-01012"
)

var (
	subjectActions = []string{"zoomToSubject", "highlight"}
	shapeActions   = []string{"zoomToShape", "highlight"}
)

// #endregion

// #region default-catalog

// DefaultCatalog returns the shipped NYC Parks rule set. A fresh slice is
// returned on every call; rules themselves are values and safe to share.
func DefaultCatalog() []Rule {
	return []Rule{
		ProximityRule{
			Base: Base{
				ID:          "proximity-grill-trees-10ft",
				Severity:    SeverityWarning,
				Message:     "Grill is within ${distanceFeetRounded} ft of a tree. Keep at least ${thresholdFeet} ft clearance.",
				CitationURL: citeBarbecuing,
				Actions:     subjectActions,
			},
			Subject:       Subject{SourceKind: SourceDroppedObjects, WhereType: "grill"},
			Target:        Target{LayerID: "trees"},
			ThresholdFeet: 10,
		},
		ProximityRule{
			Base: Base{
				ID:          "proximity-grill-benches-6ft",
				Severity:    SeverityInfo,
				Message:     "Grill is within ${distanceFeetRounded} ft of a bench. Maintain at least ${thresholdFeet} ft for safety and comfort.",
				CitationURL: citeBarbecuing,
				Actions:     subjectActions,
			},
			Subject:       Subject{SourceKind: SourceDroppedObjects, WhereType: "grill"},
			Target:        Target{LayerID: "benches"},
			ThresholdFeet: 6,
		},
		ProximityRule{
			Base: Base{
				ID:          "proximity-anything-to-ped-ramp-3ft",
				Severity:    SeverityInfo,
				Message:     "You cannot place anything within 3 ft of a pedestrian ramp, as equipment can not block wheelchair access on sidewalks.",
				CitationURL: citeParksRules,
			},
			Subject:       Subject{SourceKind: SourceDroppedObjects, WhereType: AnyType},
			Target:        Target{LayerID: "pedestrian_ramps"},
			ThresholdFeet: 3,
		},
		ProximityRule{
			Base: Base{
				ID:          "proximity-anything-fastened-to-tree-2ft",
				Severity:    SeverityInfo,
				Message:     "Per NYC Parks rules, you cannot fasten or attach any sign, banner, flier or other object to any tree, shrub or park feature.",
				CitationURL: citeTreeFastening,
			},
			Subject:       Subject{SourceKind: SourceDroppedObjects, WhereType: AnyType},
			Target:        Target{LayerID: "trees"},
			ThresholdFeet: 2,
		},
		TextRule{
			Base: Base{
				ID:          "text-glass-prohibited",
				Severity:    SeverityInfo,
				Message:     `“Glass” is prohibited in NYC parks. Found in label: "${labelSnippet}"`,
				CitationURL: citeParksRules,
				Actions:     shapeActions,
			},
			Match: Match{Mode: MatchModeRegex, Pattern: `\bglass\b`, Flags: "i"},
		},
		TextRule{
			Base: Base{
				ID:          "text-alcohol-prohibited",
				Severity:    SeverityInfo,
				Message:     `Alcohol is prohibited in NYC parks. Found: "${labelSnippet}"`,
				CitationURL: citeParksRules,
				Actions:     shapeActions,
			},
			Match: Match{Mode: MatchModeRegex, Pattern: `\b(alcohol|beer|wine|liquor)\b`, Flags: "i"},
		},
		TextRule{
			Base: Base{
				ID:          "text-generator-permit",
				Severity:    SeverityInfo,
				Message:     `Generators may require permits and safety clearances. Found: "${labelSnippet}"`,
				CitationURL: citeFDNYPermits,
				Actions:     shapeActions,
			},
			Match: Match{Mode: MatchModeRegex, Pattern: `\bgenerator(s)?\b`, Flags: "i"},
		},
		TextRule{
			Base: Base{
				ID:          "text-propane-permit",
				Severity:    SeverityWarning,
				Message:     `Propane (LPG) usage is regulated and may require permits. Found: "${labelSnippet}"`,
				CitationURL: citeFDNYPermits,
				Actions:     shapeActions,
			},
			Match: Match{Mode: MatchModeRegex, Pattern: `\b(propane|lpg)\b`, Flags: "i"},
		},
		// Placement rules fire wherever the object is dropped.
		ObjectRule{
			Base: Base{
				ID:          "object-generator-permit",
				Severity:    SeverityInfo,
				Message:     "Generators require permits and must comply with FDNY rules. Object: ${objectName}",
				CitationURL: citeFDNYPermits,
				Actions:     subjectActions,
			},
			Subject: Subject{SourceKind: SourceDroppedObjects, WhereType: "generator"},
		},
		ObjectRule{
			Base: Base{
				ID:          "object-loudspeaker-permit",
				Severity:    SeverityInfo,
				Message:     "Sound amplification may need a permit (NYPD Sound Device Permit). Object: ${objectName}",
				CitationURL: citeSoundDevice,
				Actions:     subjectActions,
			},
			Subject: Subject{SourceKind: SourceDroppedObjects, WhereType: "speaker"},
		},
	}
}

// #endregion

// #region lookup

// ByID indexes a catalog by rule id.
func ByID(catalog []Rule) map[string]Rule {
	out := make(map[string]Rule, len(catalog))
	for _, r := range catalog {
		out[r.Info().ID] = r
	}
	return out
}

// #endregion
