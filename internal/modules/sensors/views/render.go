package views

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/forecast"
	"minewatch-server/internal/modules/sensors/mapview"
	"minewatch-server/internal/modules/sensors/session"
	"minewatch-server/internal/modules/sensors/sites"
	"minewatch-server/internal/modules/sensors/status"
	"minewatch-server/internal/modules/sensors/store"
	"minewatch-server/internal/modules/sensors/types"
)

//go:embed templates
var viewsFS embed.FS

// RecentRows is the length of the history table.
const RecentRows = 20

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"num": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	t, err := template.New("views").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = t
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

func execute(w io.Writer, name string, data any) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, name, data)
}

type ChannelInput struct {
	Channel types.Channel
	Info    types.ChannelInfo
	Value   string
}

// Flash reports the outcome of a form submission.
type Flash struct {
	Status    string
	Site      string
	Dangerous bool
	Alert     *alert.Result
	Error     string
}

type StatusPanel struct {
	Site string
	// Query is pre-encoded by url.Values.Encode.
	Query   template.URL
	Reading *types.Reading
	Color   status.Color
}

type ForecastPanel struct {
	Site     string
	Selected types.Channel
	Channels []types.Channel
	Result   forecast.Result
	Chart    template.HTML
}

type TrendPanel struct {
	Site  string
	Chart template.HTML
	Empty bool
}

type ReadingsPanel struct {
	Site string
	Rows []types.Reading
}

type MapPanel struct {
	View mapview.View
}

type DashboardData struct {
	Now      string
	Year     int
	State    session.State
	Query    template.URL
	Sites    []sites.Site
	Inputs   []ChannelInput
	Flash    *Flash
	Status   StatusPanel
	Forecast ForecastPanel
	Trend    TrendPanel
	Readings ReadingsPanel
	Map      MapPanel
}

// NewDashboardData derives every panel from the sorted readings and the
// request state.
func NewDashboardData(state session.State, all []types.Reading, now time.Time) *DashboardData {
	site := siteReadings(all, state.Site)
	q := template.URL(state.Query().Encode())
	return &DashboardData{
		Now:      now.Format(types.TimeLayout),
		Year:     now.Year(),
		State:    state,
		Query:    q,
		Sites:    sites.Sorted(),
		Inputs:   inputs(state.Values),
		Status:   NewStatusPanel(state, site),
		Forecast: NewForecastPanel(state, site),
		Trend:    NewTrendPanel(state.Site, site),
		Readings: NewReadingsPanel(state.Site, site),
		Map:      NewMapPanel(all),
	}
}

func siteReadings(all []types.Reading, site string) []types.Reading {
	var out []types.Reading
	for _, r := range all {
		if r.Site == site {
			out = append(out, r)
		}
	}
	return out
}

func inputs(v types.Values) []ChannelInput {
	out := make([]ChannelInput, 0, len(types.Channels))
	for _, ch := range types.Channels {
		out = append(out, ChannelInput{
			Channel: ch,
			Info:    ch.Info(),
			Value:   strconv.FormatFloat(v.Get(ch), 'f', -1, 64),
		})
	}
	return out
}

// NewStatusPanel shows the newest of the site's sorted readings.
func NewStatusPanel(state session.State, site []types.Reading) StatusPanel {
	p := StatusPanel{Site: state.Site, Query: template.URL(state.Query().Encode()), Color: status.Gray}
	if len(site) > 0 {
		last := site[len(site)-1]
		p.Reading = &last
		p.Color = status.ColorFor(last.Status)
	}
	return p
}

func NewForecastPanel(state session.State, site []types.Reading) ForecastPanel {
	res := forecast.ForReadings(site, state.Channel)
	p := ForecastPanel{
		Site:     state.Site,
		Selected: state.Channel,
		Channels: types.Channels,
		Result:   res,
	}
	if !res.Insufficient {
		p.Chart = renderChart(ForecastChart(site, res))
	}
	return p
}

func NewTrendPanel(site string, readings []types.Reading) TrendPanel {
	if len(readings) == 0 {
		return TrendPanel{Site: site, Empty: true}
	}
	return TrendPanel{Site: site, Chart: renderChart(TrendChart(readings))}
}

// renderChart logs and omits a chart that fails to render; the rest of the
// page still renders.
func renderChart(c Chart) template.HTML {
	out, err := c.SVG()
	if err != nil {
		slog.Warn("chart render failed", "chart", c.YLabel, "error", err)
		return ""
	}
	return out
}

// NewReadingsPanel keeps the last RecentRows readings, oldest first.
func NewReadingsPanel(site string, readings []types.Reading) ReadingsPanel {
	if len(readings) > RecentRows {
		readings = readings[len(readings)-RecentRows:]
	}
	return ReadingsPanel{Site: site, Rows: readings}
}

func NewMapPanel(all []types.Reading) MapPanel {
	return MapPanel{View: mapview.Build(store.Latest(all))}
}

// ForecastChart plots history with markers, the fitted forecast dashed, and
// the channel threshold dotted.
func ForecastChart(history []types.Reading, res forecast.Result) Chart {
	info := res.Channel.Info()
	hist := make([]float64, len(history))
	for i, r := range history {
		hist[i] = r.Values.Get(res.Channel)
	}
	future := make([]float64, len(res.Future))
	for i, p := range res.Future {
		future[i] = p.Value
	}
	c := Chart{
		YLabel: info.Label + " (" + info.Unit + ")",
		Series: []Series{
			{Label: "Historis", Color: info.Color, Values: hist, Dots: true},
			{Label: "Forecast", Color: "gray", Values: future, Offset: len(hist), Dashed: true},
		},
		Threshold:    res.Threshold,
		HasThreshold: true,
	}
	if len(history) > 0 {
		c.XStart = history[0].Timestamp()
	}
	if n := len(res.Future); n > 0 {
		c.XEnd = res.Future[n-1].Time.Format(types.TimeLayout)
	}
	return c
}

// TrendChart plots every channel of a site's readings on one axis.
func TrendChart(readings []types.Reading) Chart {
	c := Chart{YLabel: "Nilai"}
	for _, ch := range types.Channels {
		vals := make([]float64, len(readings))
		for i, r := range readings {
			vals[i] = r.Values.Get(ch)
		}
		info := ch.Info()
		c.Series = append(c.Series, Series{Label: info.Label, Color: info.Color, Values: vals, Dots: true})
	}
	if len(readings) > 0 {
		c.XStart = readings[0].Timestamp()
		c.XEnd = readings[len(readings)-1].Timestamp()
	}
	return c
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	return execute(w, "dashboard.html", data)
}

// RenderStatusPartial executes only the latest-status panel; used for HTMX refresh.
func RenderStatusPartial(w io.Writer, data StatusPanel) error {
	return execute(w, "partials/status.html", data)
}

func RenderForecastPartial(w io.Writer, data ForecastPanel) error {
	return execute(w, "partials/forecast.html", data)
}

func RenderMapPartial(w io.Writer, data MapPanel) error {
	return execute(w, "partials/map.html", data)
}
