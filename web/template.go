// Package web serves the live training monitor: run statistics with
// loss, accuracy and throughput plots updated over a websocket, the run
// configuration and start and stop controls.
package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
)

var authKey = []byte("Eiqu4zo7shoo0ahS")

// Templates holds the parsed page templates and the main menu. Each
// page has its own template set sharing the common layout.
type Templates struct {
	pages map[string]*template.Template
	Menu  []Link
	store sessions.Store
}

type Link struct {
	Url      string
	Name     string
	Selected bool
}

// NewTemplates parses the built in page templates.
func NewTemplates() (*Templates, error) {
	t := &Templates{Menu: []Link{}, pages: map[string]*template.Template{}}
	for name, text := range pageHTML {
		tmpl, err := template.New("layout").Parse(layoutHTML)
		if err != nil {
			return nil, err
		}
		if _, err = tmpl.Parse(text); err != nil {
			return nil, err
		}
		t.pages[name] = tmpl
	}
	t.store = sessions.NewCookieStore(authKey)
	return t, nil
}

// ExecuteTemplate renders the named page into w.
func (t *Templates) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	tmpl, ok := t.pages[name]
	if !ok {
		return fmt.Errorf("no such page template: %s", name)
	}
	return tmpl.Execute(w, data)
}

func (t *Templates) Clone() *Templates {
	return &Templates{
		pages: t.pages,
		Menu:  append([]Link{}, t.Menu...),
		store: t.store,
	}
}

func (t *Templates) AddMenuItem(l Link) *Templates {
	t.Menu = append(t.Menu, l)
	return t
}

func (t *Templates) Select(url string) *Templates {
	for i, key := range t.Menu {
		t.Menu[i].Selected = strings.HasPrefix(key.Url, url)
	}
	return t
}

func logError(w http.ResponseWriter, err error) {
	log.Println(err)
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
<title>training monitor</title>
<style>
body { font-family: sans-serif; margin: 1em; }
nav a { margin-right: 1em; }
nav a.selected { font-weight: bold; }
table { border-collapse: collapse; }
td, th { padding: 2px 10px; text-align: right; border-bottom: 1px solid #ddd; }
pre { background: #f5f5f5; padding: 1em; }
p.flash { color: #06c; font-style: italic; }
</style>
</head>
<body>
<nav>
{{range .Menu}}<a href="{{.Url}}"{{if .Selected}} class="selected"{{end}}>{{.Name}}</a>{{end}}
</nav>
{{template "content" .}}
</body>
</html>`

var pageHTML = map[string]string{
	"stats": `{{define "content"}}
<h2>{{.Heading}}</h2>
{{range .Flashes}}<p class="flash">{{.}}</p>{{end}}
<p>{{.RunTime}} {{with .Throughput}}mean throughput: {{.}}{{end}}</p>
<div id="plots">{{.LossPlot 6 3}}{{.AccuracyPlot 6 3}}{{.ThroughputPlot 6 3}}</div>
<table>
<tr><th>step</th><th>iteration</th><th>epoch</th><th>lr</th><th>loss</th><th>top-1 %</th><th>samples/sec</th></tr>
{{range .LatestStats 10}}
<tr><td>{{.Step}}</td><td>{{.Iteration}}</td><td>{{printf "%.2f" .Epoch}}</td><td>{{printf "%.4g" .LR}}</td>
<td>{{printf "%.3f" .LossAvg}}</td><td>{{printf "%.2f" .AccPct}}</td><td>{{printf "%.1f" .PerSec}}</td></tr>
{{end}}
</table>
<form method="POST" action="/train/start"><button>start</button></form>
<form method="POST" action="/train/stop"><button>stop</button></form>
<script>
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function(ev) { location.reload(); };
</script>
{{end}}`,
	"config": `{{define "content"}}
<h2>run configuration</h2>
<pre>{{.ConfigText}}</pre>
{{end}}`,
}
