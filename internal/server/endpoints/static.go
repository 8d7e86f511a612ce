package endpoints

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/api"
	"github.com/jackzampolin/pagecap/web"
)

// StaticEndpoint serves the embedded control panel.
//
// Requests for a file that exists in the bundle are served as-is. Paths
// without an extension are panel routes and get index.html; a missing path
// with an extension is a missing asset and gets a 404.
type StaticEndpoint struct{}

var _ api.Endpoint = (*StaticEndpoint)(nil)

func (e *StaticEndpoint) Route() (string, string, http.HandlerFunc) {
	// Catch-all for GET requests no other route matched.
	return "GET", "/{path...}", e.handler
}

func (e *StaticEndpoint) RequiresInit() bool {
	return false
}

func (e *StaticEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

func (e *StaticEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	panel, err := web.DistFS()
	if err != nil {
		http.Error(w, "control panel not available", http.StatusInternalServerError)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name != "" && name != "index.html" {
		if info, err := fs.Stat(panel, name); err == nil && !info.IsDir() {
			http.FileServerFS(panel).ServeHTTP(w, r)
			return
		}
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
	}

	servePanelIndex(w, panel)
}

// servePanelIndex writes index.html uncached so a rebuilt binary's panel
// is picked up on reload.
func servePanelIndex(w http.ResponseWriter, panel fs.FS) {
	index, err := fs.ReadFile(panel, "index.html")
	if err != nil {
		http.Error(w, "control panel not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(index)
}
