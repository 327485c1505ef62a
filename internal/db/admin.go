package db

import (
	"net/http"

	"github.com/banshee-data/plantconnect/internal/httputil"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the tailsql console and a settings dump on the
// tsweb debug page.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return err
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "PlantConnect overrides",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("settings", "Local setting overrides", func(w http.ResponseWriter, r *http.Request) {
		list, err := db.ListSettings(r.Context())
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []Setting{}
		}
		httputil.WriteJSONOK(w, list)
	})
	return nil
}
