package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/morezero/datatype-introspection/pkg/commsutil"
	"github.com/morezero/datatype-introspection/pkg/datatype"
	"github.com/morezero/datatype-introspection/pkg/introspection"
	"github.com/morezero/datatype-introspection/pkg/registry"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/type/", s.handleType())
	mux.HandleFunc("/peers", s.handlePeers())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	return mux
}

func (s *Server) healthParams() registry.HealthParams {
	params := registry.HealthParams{
		COMMS: func(context.Context) error { return commsutil.Healthy(s.nc) },
	}
	if s.repo != nil {
		params.Database = s.repo.Ping
	}
	return params
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		h := s.reg.Health(ctx, s.healthParams())
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.reg == nil || !s.reg.IsFrozen() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handlePeers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.peers.List())
	}
}

// typeView is the JSON body of /type/<name>.
type typeView struct {
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	ID        datatype.ID `json:"id"`
	Signature string      `json:"signature"`
	Mask      uint8       `json:"mask"`
	Flags     []string    `json:"flags"`
}

func (s *Server) handleType() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/type/"), "/")
		if name == "" {
			http.NotFound(w, r)
			return
		}

		resp := s.typeInfo(name)
		if !resp.Known() {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown data type %s", name)})
			return
		}
		writeJSON(w, http.StatusOK, typeView{
			Name:      resp.Name,
			Kind:      resp.Kind.String(),
			ID:        resp.ID,
			Signature: resp.Signature.String(),
			Mask:      resp.Mask,
			Flags:     flagNames(resp.Mask),
		})
	}
}

// typeInfo answers exactly what a peer asking GetDataTypeInfo by name would get.
func (s *Server) typeInfo(name string) *introspection.GetDataTypeInfoResponse {
	var resp introspection.GetDataTypeInfoResponse
	s.provider.GetDataTypeInfo(&introspection.GetDataTypeInfoRequest{Name: name}, &resp)
	return &resp
}

func flagNames(mask uint8) []string {
	names := make([]string, 0, 4)
	for _, f := range []struct {
		bit  uint8
		name string
	}{
		{introspection.FlagKnown, "known"},
		{introspection.FlagSubscribed, "subscribed"},
		{introspection.FlagPublishing, "publishing"},
		{introspection.FlagServing, "serving"},
	} {
		if mask&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode HTTP response: %v", logPrefix, err))
	}
}

// homePageTemplate is the HTML for the node home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Node}} – Data Types</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    code, .stat { font-weight: bold; color: #0066cc; }
    .error { color: #cc0000; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Node}}</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Catalog frozen: {{if .Health.Checks.Catalog}}<span class="stat">yes</span>{{else}}<span class="error">no</span>{{end}}</p>
    <p>COMMS: {{if .Health.Checks.COMMS}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    <p>Peers: <a href="/peers">{{.PeerCount}}</a>{{if .Disagreeing}} (<span class="error">{{.Disagreeing}} disagree</span>){{end}}</p>
  </section>

  {{range .Kinds}}
  <section>
    <h2>{{.Title}}</h2>
    <p>{{.Count}} registered, aggregate signature <code>{{.Aggregate}}</code></p>
    {{if not .Types}}
    <p>None registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>ID</th><th>Name</th><th>Signature</th><th>Usage</th></tr>
      </thead>
      <tbody>
        {{range .Types}}
        <tr>
          <td>{{.ID}}</td>
          <td><a href="/type/{{.Name}}">{{.Name}}</a></td>
          <td><code>{{.Signature}}</code></td>
          <td>{{join .Flags ", "}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
  {{end}}
</body>
</html>
`

type homeRow struct {
	ID        datatype.ID
	Name      string
	Signature datatype.Signature
	Flags     []string
}

type homeKind struct {
	Title     string
	Count     int
	Aggregate datatype.Signature
	Types     []homeRow
}

// homeData is the data passed to the home page template.
type homeData struct {
	Node        string
	Health      *registry.HealthOutput
	PeerCount   int
	Disagreeing int
	Kinds       []homeKind
}

func (s *Server) homeData(ctx context.Context) homeData {
	data := homeData{
		Node:        s.cfg.NodeName,
		Health:      s.reg.Health(ctx, s.healthParams()),
		PeerCount:   len(s.peers.List()),
		Disagreeing: s.peers.Disagreeing(),
	}
	for _, k := range []struct {
		kind  datatype.Kind
		title string
	}{
		{datatype.KindService, "Services"},
		{datatype.KindMessage, "Messages"},
	} {
		hk := homeKind{Title: k.title, Count: s.reg.Count(k.kind), Aggregate: s.reg.Aggregate(k.kind)}
		for _, d := range s.reg.List(k.kind) {
			hk.Types = append(hk.Types, homeRow{
				ID:        d.ID,
				Name:      d.FullName,
				Signature: d.Signature,
				Flags:     flagNames(s.typeInfo(d.FullName).Mask),
			})
		}
		data.Kinds = append(data.Kinds, hk)
	}
	return data
}

// handleHome returns an HTTP handler for the node home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(template.FuncMap{"join": strings.Join}).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, s.homeData(ctx)); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
