package repl

import (
	"bytes"
	"fmt"
	"net/http"

	statesync "github.com/colyseus/colyseus-unity-sdk-sub001"
	"github.com/colyseus/colyseus-unity-sdk-sub001/room"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source gives locked access to a session; room.Room and REPL are both.
type Source interface {
	Sync(fn func(s *room.Session))
}

// Sync runs fn on the loaded session, if any.
func (repl *REPL) Sync(fn func(s *room.Session)) {
	repl.mu.Lock()
	defer repl.mu.Unlock()
	if repl.session != nil {
		fn(repl.session)
	}
}

func AddCorsHeaders(f func(w http.ResponseWriter, req *http.Request)) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "86400")
		f(w, req)
	}
}

// StateHandler prints the state, or the node at ?path=.
func StateHandler(src Source) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "GET")
			w.WriteHeader(http.StatusNoContent)
		case "GET":
			var buf bytes.Buffer
			status := http.StatusServiceUnavailable
			src.Sync(func(s *room.Session) {
				d := s.Decoder()
				if d == nil {
					return
				}
				v, err := statesync.Lookup(d.State(), req.URL.Query().Get("path"))
				if err != nil {
					status = http.StatusNotFound
					buf.WriteString(err.Error())
					return
				}
				status = http.StatusOK
				if v.IsRef() {
					statesync.DumpNode(&buf, v.Ref())
				} else {
					buf.WriteString(v.String() + "\n")
				}
			})
			if status == http.StatusServiceUnavailable {
				http.Error(w, "no state yet", status)
				return
			}
			w.WriteHeader(status)
			_, _ = w.Write(buf.Bytes())
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}

// RefsHandler prints the tracked refIds.
func RefsHandler(src Source) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != "GET" {
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
			return
		}
		var buf bytes.Buffer
		src.Sync(func(s *room.Session) {
			if d := s.Decoder(); d != nil {
				d.DumpRefs(&buf)
			}
		})
		_, _ = w.Write(buf.Bytes())
	}
}

// NewMux serves the inspector endpoints and the metrics of reg.
func NewMux(src Source, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", AddCorsHeaders(StateHandler(src)))
	mux.HandleFunc("/refs", AddCorsHeaders(RefsHandler(src)))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
