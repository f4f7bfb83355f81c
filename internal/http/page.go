package http

import (
	"html/template"
	"io"

	"github.com/kjstillabower/climate-dashboard/internal/chart"
	"github.com/kjstillabower/climate-dashboard/internal/dashboard"
)

const dashboardHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Climate Dashboard</title>
  <style>
    body { font-family: system-ui, sans-serif; margin: 0; background: #f5f6f8; color: #222; }
    header { background: #1f3a5f; color: #fff; padding: 1rem 2rem; }
    main { max-width: 1040px; margin: 0 auto; padding: 1rem 2rem 3rem; }
    .notice { display: flex; justify-content: space-between; align-items: center; padding: .75rem 1rem; margin: 1rem 0; border-radius: 4px; }
    .notice.error { background: #fde2e1; border: 1px solid #f5a3a0; }
    .notice.warning { background: #fff4d6; border: 1px solid #f0d080; }
    .notice button { background: none; border: none; font-size: 1.25rem; cursor: pointer; }
    .panel { background: #fff; border-radius: 6px; padding: 1rem; margin: 1rem 0; box-shadow: 0 1px 2px rgba(0,0,0,.08); }
    .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: .75rem; }
    .stat .label { font-size: .8rem; color: #666; }
    .stat .value { font-size: 1.2rem; font-weight: 600; }
    .controls { display: flex; gap: 1rem; align-items: end; flex-wrap: wrap; }
    img.chart { width: 100%; height: auto; }
    .loading { color: #666; font-style: italic; }
  </style>
</head>
<body>
<header><h1>Global Temperature Dashboard</h1></header>
<main>
{{with .Notice}}
  <div class="notice {{.Level}}" role="alert">
    <span>{{.Message}}</span>
    <form method="post" action="{{$.Base}}/notice/dismiss"><button type="submit" aria-label="Dismiss">&times;</button></form>
  </div>
{{end}}
{{if eq .State "loading"}}
  <p class="loading">Loading climate data...</p>
{{else if eq .State "error"}}
  <p><a href="/">Try again</a></p>
{{else}}
  <section class="panel">
    <h2>Key Statistics</h2>
    <div class="stats">
      <div class="stat"><div class="label">Data range</div><div class="value">{{.Summary.DataRange}}</div></div>
      <div class="stat"><div class="label">Trend per decade</div><div class="value">{{.Summary.TrendPerDecade}}</div></div>
      <div class="stat"><div class="label">Warming since pre-industrial</div><div class="value">{{.Summary.WarmingSincePreindustrial}}</div></div>
      <div class="stat"><div class="label">Warmest year</div><div class="value">{{.Summary.WarmestYear}}</div></div>
      <div class="stat"><div class="label">Coldest year</div><div class="value">{{.Summary.ColdestYear}}</div></div>
      {{range .Summary.PeriodAverages}}
      <div class="stat"><div class="label">{{.Label}}</div><div class="value">{{.Value}}</div></div>
      {{end}}
    </div>
  </section>
  {{range .Charts}}
  <section class="panel" id="{{.Kind}}">
    {{if eq .Kind "custom"}}
    <form class="controls" method="post" action="{{$.Base}}/range">
      <label>Start year
        <select name="start">{{range $.Years}}<option value="{{.}}"{{if eq . $.Selected.Start}} selected{{end}}>{{.}}</option>{{end}}</select>
      </label>
      <label>End year
        <select name="end">{{range $.Years}}<option value="{{.}}"{{if eq . $.Selected.End}} selected{{end}}>{{.}}</option>{{end}}</select>
      </label>
      <button type="submit">Update</button>
    </form>
    {{end}}
    <img class="chart" src="{{$.Base}}/charts/{{.Kind}}.svg?v={{.ID}}" alt="{{.Title}}">
    {{range .Notes}}<p class="loading">{{.}}</p>{{end}}
  </section>
  {{end}}
{{end}}
</main>
</body>
</html>
`

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardHTMLTemplate))

type pageChart struct {
	Kind  chart.Kind
	ID    string
	Title string
	Notes []string
}

type pageData struct {
	dashboard.View
	State  string
	Base   string
	Charts []pageChart
}

func newPageData(v dashboard.View) pageData {
	pd := pageData{
		View:  v,
		State: v.State.String(),
		Base:  "/dashboards/" + v.ID,
	}
	for _, kind := range chart.Kinds {
		if c, ok := v.Charts[kind]; ok {
			pd.Charts = append(pd.Charts, pageChart{Kind: kind, ID: c.ID, Title: c.Title, Notes: c.Notes})
		}
	}
	return pd
}

func renderDashboardPage(w io.Writer, v dashboard.View) error {
	return dashboardTemplate.Execute(w, newPageData(v))
}
