// Package render presents a snapshot and the control sheets: KPI tiles,
// terminal tables and the HTML pages served to the quality team.
package render

import "veilleboard/internal/models"

// TileSpec describes how a KPI is shown.
type TileSpec struct {
	Key   string
	Title string
	Hint  string
}

// Catalog is an ordered list of known KPIs.
type Catalog []TileSpec

// DefaultCatalog covers every key produced by the v1 and v2 schemas.
var DefaultCatalog = Catalog{
	{Key: models.KPITotalTracked, Title: "Textes suivis", Hint: "Textes présents dans la base active"},
	{Key: models.KPIApplicable, Title: "Textes applicables", Hint: "Hors sans objet et archivés"},
	{Key: models.KPIActionsRequired, Title: "Actions requises", Hint: "Mises en conformité, réévaluations et qualifications"},
	{Key: models.KPISubMEC, Title: "À mettre en conformité", Hint: "Textes non conformes"},
	{Key: models.KPISubReeval, Title: "À réévaluer", Hint: "Échéance d'évaluation dépassée"},
	{Key: models.KPISubQualif, Title: "À qualifier", Hint: "Conformité non renseignée"},
	{Key: models.KPINewAlerts, Title: "Nouveautés", Hint: "Textes du rapport de veille"},
	{Key: models.KPIAlertsIA, Title: "Alertes IA", Hint: "Textes détectés par la veille automatique"},
	{Key: models.KPIProofScore, Title: "Score de preuves", Hint: "Part des textes applicables avec preuve"},
}

// Spec returns the entry for key.
func (c Catalog) Spec(key string) (TileSpec, bool) {
	for _, s := range c {
		if s.Key == key {
			return s, true
		}
	}
	return TileSpec{}, false
}

// Tile is one KPI ready for display.
type Tile struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Value string `json:"value"`
	Kind  string `json:"kind"`
	Hint  string `json:"hint,omitempty"`
}

// Tiles lays out the KPIs of s in catalog order. Catalogued keys missing
// from the snapshot produce no tile; keys the catalog does not know are
// appended under their own name.
func Tiles(s models.Snapshot, catalog Catalog) []Tile {
	tiles := make([]Tile, 0, len(s.KPIs))
	for _, spec := range catalog {
		v, ok := s.KPIs.Get(spec.Key)
		if !ok {
			continue
		}
		tiles = append(tiles, Tile{Key: spec.Key, Title: spec.Title, Value: v.String(), Kind: v.Kind.String(), Hint: spec.Hint})
	}
	for _, kpi := range s.KPIs {
		if _, known := catalog.Spec(kpi.Name); known {
			continue
		}
		tiles = append(tiles, Tile{Key: kpi.Name, Title: kpi.Name, Value: kpi.Value.String(), Kind: kpi.Value.Kind.String()})
	}
	return tiles
}
