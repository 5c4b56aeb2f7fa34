package scene

import (
	"fmt"
	"strings"

	"github.com/sapo-planner/nudge-controller/internal/geo"
)

// #region signature

// Signature summarizes every snapshot input that can change object and
// proximity outcomes. Text outcomes are not covered: they are recomputed on
// every pass from a per-shape match cache.
type Signature struct {
	Objects        string
	Layers         string
	Infrastructure string
	LabelScan      string
}

// String joins the parts in a stable order.
func (s Signature) String() string {
	return strings.Join([]string{s.Objects, s.Layers, s.Infrastructure, s.LabelScan}, "||")
}

// ComputeSignature builds the signature of snap for the given proximity
// layers. labelScanGen is bumped by the owner whenever a label scan is
// requested; any bump forces a full re-evaluation.
func ComputeSignature(snap *Snapshot, proximityLayers []string, labelScanGen uint64) Signature {
	return Signature{
		Objects:        objectsPart(snap),
		Layers:         layersPart(snap, proximityLayers),
		Infrastructure: infrastructurePart(snap, proximityLayers),
		LabelScan:      fmt.Sprintf("labelScan:%d", labelScanGen),
	}
}

// #endregion signature

// #region parts

// objectsPart keeps discovery order, since evaluator output follows it. The
// name is quoted because it feeds object messages and may hold separators.
func objectsPart(snap *Snapshot) string {
	if snap == nil || len(snap.DroppedObjects) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snap.DroppedObjects))
	for _, o := range snap.DroppedObjects {
		pos := "-"
		if o.Position != nil {
			pos = o.Position.Key()
		}
		parts = append(parts, fmt.Sprintf("%s:%s:%q:%s", o.ID, o.Type, o.Name, pos))
	}
	return strings.Join(parts, "|")
}

func layersPart(snap *Snapshot, layers []string) string {
	parts := make([]string, 0, len(layers))
	for _, id := range layers {
		parts = append(parts, fmt.Sprintf("%s:%t", id, snap.LayerVisible(id)))
	}
	return strings.Join(parts, "|")
}

// infrastructurePart records count and first feature key per layer. A layer
// swapped for one of equal length with the same first feature goes unnoticed;
// the infrastructure cache replaces whole collections, so that does not occur.
func infrastructurePart(snap *Snapshot, layers []string) string {
	parts := make([]string, 0, len(layers))
	for _, id := range layers {
		feats := snap.LayerFeatures(id)
		first := ""
		if len(feats) > 0 {
			first = geo.FeatureKey(feats[0])
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%s", id, len(feats), first))
	}
	return strings.Join(parts, "|")
}

// #endregion parts
