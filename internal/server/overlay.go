package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/slate/internal/errors"
)

// entityErrorView is the JSON and HTML shape of one failing entity.
type entityErrorView struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

func viewOf(e errors.EntityError) entityErrorView {
	v := entityErrorView{ID: e.ID, Type: string(e.Type), Message: e.Message()}
	var se *errors.SlateError
	if errors.As(e.Err, &se) {
		v.Code = se.Code
		v.File = se.Path
		v.Line = se.Line
	}
	return v
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	failing := s.session.Errors()
	views := make([]entityErrorView, 0, len(failing))
	for _, e := range failing {
		views = append(views, viewOf(e))
	}

	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, map[string]interface{}{"errors": views})
		return
	}
	templ.Handler(errorOverlay(views)).ServeHTTP(w, r)
}

// errorOverlay renders the failing entities as a standalone page, shown
// by the reload script in an iframe over the previewed page.
func errorOverlay(views []entityErrorView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!doctype html><html><head><meta charset="utf-8"><title>Build errors</title><style>`)
		b.WriteString(overlayCSS)
		b.WriteString(`</style></head><body>`)
		if len(views) == 0 {
			b.WriteString(`<h1 class="ok">No build errors</h1>`)
		} else {
			fmt.Fprintf(&b, `<h1>%d failing %s</h1><ol>`, len(views), plural(len(views), "entity", "entities"))
			for _, v := range views {
				b.WriteString(`<li><div class="id">`)
				b.WriteString(templ.EscapeString(v.ID))
				b.WriteString(`</div><div class="meta">`)
				b.WriteString(templ.EscapeString(v.Type))
				if v.Code != "" {
					b.WriteString(` `)
					b.WriteString(templ.EscapeString(v.Code))
				}
				if v.File != "" {
					b.WriteString(` at `)
					b.WriteString(templ.EscapeString(v.File))
					if v.Line > 0 {
						fmt.Fprintf(&b, ":%d", v.Line)
					}
				}
				b.WriteString(`</div><pre>`)
				b.WriteString(templ.EscapeString(v.Message))
				b.WriteString(`</pre></li>`)
			}
			b.WriteString(`</ol>`)
		}
		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

const overlayCSS = `body{margin:0;padding:2rem;font:14px/1.5 ui-monospace,monospace;background:#1e1e1e;color:#eee}` +
	`h1{color:#ff6b6b;font-size:1.25rem}h1.ok{color:#7bd88f}ol{padding-left:1.5rem}li{margin-bottom:1.5rem}` +
	`.id{font-weight:bold}.meta{color:#aaa}pre{white-space:pre-wrap;background:#2a2a2a;padding:.75rem;border-radius:4px}`

func (s *Server) handleReloadScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = io.WriteString(w, reloadScript)
}

const reloadScript = `(function () {
  var overlay = null;
  function showErrors() {
    if (overlay) { overlay.src = overlay.src; return; }
    overlay = document.createElement("iframe");
    overlay.src = "` + Prefix + `/errors";
    overlay.style.cssText = "position:fixed;inset:0;width:100%;height:100%;border:0;z-index:2147483647";
    document.body.appendChild(overlay);
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "` + Prefix + `/ws");
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "reload") { location.reload(); }
      if (msg.type === "errors") { showErrors(); }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`
