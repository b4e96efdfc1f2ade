// Package web serves rendered training plots and tracked metrics of a gan2d run
package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/LdDl/gan2d"
	"github.com/gorilla/mux"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p><a href="/metrics">metrics</a></p>
{{range .Plots}}<div><h3>{{.}}</h3><img src="/plots/{{.}}"></div>
{{else}}<p>no plots yet</p>
{{end}}
</body>
</html>
`))

// Viewer Read-only view over plot directory and trackers. Nil trackers are skipped.
type Viewer struct {
	Title       string
	PlotDir     string
	Loss        *gan2d.LossTracker
	Probability *gan2d.ProbabilityTracker
	Trajectory  *gan2d.TrajectoryTracker
}

// Metrics Snapshots of every attached tracker
type Metrics struct {
	Loss        *gan2d.LossSnapshot        `json:"loss,omitempty"`
	Probability *gan2d.ProbabilitySnapshot `json:"probability,omitempty"`
	Trajectory  *gan2d.TrajectorySnapshot  `json:"trajectory,omitempty"`
}

func NewViewer(title, plotDir string) *Viewer {
	return &Viewer{Title: title, PlotDir: plotDir}
}

// Router Routes of the viewer
func (v *Viewer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", v.Index()).Methods("GET")
	r.HandleFunc("/plots/{name:[A-Za-z0-9_.-]+\\.png}", v.Plot()).Methods("GET")
	r.HandleFunc("/metrics", v.Metrics()).Methods("GET")
	r.HandleFunc("/metrics/{tracker:(?:loss|probability|trajectory)}", v.Tracker()).Methods("GET")
	return r
}

// Plots Names of png files in plot directory, sorted
func (v *Viewer) Plots() ([]string, error) {
	entries, err := os.ReadDir(v.PlotDir)
	if err != nil {
		return nil, err
	}
	plots := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".png") {
			plots = append(plots, e.Name())
		}
	}
	sort.Strings(plots)
	return plots, nil
}

// Handler function for the index page
func (v *Viewer) Index() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		plots, err := v.Plots()
		if err != nil {
			logError(w, err)
			return
		}
		data := struct {
			Title string
			Plots []string
		}{v.Title, plots}
		if err := indexTemplate.Execute(w, data); err != nil {
			logError(w, err)
		}
	}
}

// Handler function for the plot images
func (v *Viewer) Plot() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		path := filepath.Join(v.PlotDir, filepath.Base(name))
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-type", "image/png")
		http.ServeFile(w, r, path)
	}
}

func (v *Viewer) snapshot() Metrics {
	var m Metrics
	if v.Loss != nil {
		snap := v.Loss.Snapshot()
		m.Loss = &snap
	}
	if v.Probability != nil {
		snap := v.Probability.Snapshot()
		m.Probability = &snap
	}
	if v.Trajectory != nil {
		snap := v.Trajectory.Snapshot()
		m.Trajectory = &snap
	}
	return m
}

// Handler function for all metrics as json
func (v *Viewer) Metrics() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, v.snapshot())
	}
}

// Handler function for metrics of single tracker
func (v *Viewer) Tracker() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		m := v.snapshot()
		var payload interface{}
		switch mux.Vars(r)["tracker"] {
		case "loss":
			if m.Loss != nil {
				payload = m.Loss
			}
		case "probability":
			if m.Probability != nil {
				payload = m.Probability
			}
		case "trajectory":
			if m.Trajectory != nil {
				payload = m.Trajectory
			}
		}
		if payload == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, payload)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Println(err)
	}
}

func logError(w http.ResponseWriter, err error) {
	log.Println(err)
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}
