package render

import (
	"html/template"
	"io"
	"time"

	"github.com/goccy/go-json"

	"veilleboard/internal/models"
)

type dashboardPage struct {
	Snapshot  models.Snapshot
	Tiles     []Tile
	Generated string
	Variable  string
	Data      template.JS
}

// HTML renders the dashboard page with the snapshot embedded for the chart layer.
func HTML(w io.Writer, s models.Snapshot, catalog Catalog, variable string, now time.Time) error {
	// Marshal escapes <, > and & so the payload cannot close the script element.
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if variable == "" {
		variable = "DASHBOARD_DATA"
	}
	return templates.ExecuteTemplate(w, "dashboard.html.tmpl", dashboardPage{
		Snapshot:  s,
		Tiles:     Tiles(s, catalog),
		Generated: Generated(s, now),
		Variable:  variable,
		Data:      template.JS(data),
	})
}
