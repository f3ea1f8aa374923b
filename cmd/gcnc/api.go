package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/dispatch"
	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/machine/grbl"
	"github.com/mastercactapus/gsend/meshlevel"
	"github.com/mastercactapus/gsend/plan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	progressChannel = "/events/progress"
	gridFile        = "grid.json"
)

type api struct {
	http.Handler
	ctx     context.Context
	w       *dispatch.Worker
	c       controller
	dataDir string
	sse     *sse.Server

	granularity float64

	mx    sync.Mutex
	mesh  *meshlevel.Mesh
	probe *probeRun

	unsubscribe func()
	forwarded   chan struct{}
	closeOnce   sync.Once
}

// probeRun collects the probe reports of a probe grid run.
type probeRun struct {
	id     string
	wco    coord.Point
	points []coord.Point
}

func newAPI(ctx context.Context, w *dispatch.Worker, c controller, reg prometheus.Gatherer, cfg *Config) *api {
	r := mux.NewRouter()

	a := &api{
		Handler:     r,
		ctx:         ctx,
		w:           w,
		c:           c,
		dataDir:     cfg.Dir,
		granularity: cfg.Granularity,
		forwarded:   make(chan struct{}),
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	fs := http.FileServer(http.Dir(cfg.Dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.HandleFunc("/api/run", a.run).Methods("POST")
	r.HandleFunc("/api/cancel", a.cancel).Methods("POST")
	r.HandleFunc("/api/status", a.status).Methods("GET")
	r.HandleFunc("/api/probe", a.probeGrid).Methods("POST")
	r.HandleFunc("/api/level", a.loadLevel).Methods("POST")
	r.HandleFunc("/api/level", a.clearLevel).Methods("DELETE")

	r.PathPrefix("/events/").Handler(a.sse)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	var updates <-chan dispatch.Update
	updates, a.unsubscribe = w.Subscribe()
	go a.forward(updates)

	return a
}

// Close stops forwarding updates and disconnects all event clients, so
// their handlers return. It is safe to call more than once.
func (a *api) Close() {
	a.closeOnce.Do(func() {
		a.unsubscribe()
		<-a.forwarded
		a.sse.CloseChannel(progressChannel)
	})
}

func (a *api) forward(updates <-chan dispatch.Update) {
	defer close(a.forwarded)
	for u := range updates {
		a.collectProbe(u)

		data, err := json.Marshal(u)
		if err != nil {
			log.Printf("ERROR: marshal json: %+v", err)
			continue
		}
		event := "progress"
		if u.Outcome != nil {
			event = u.Outcome.State.String()
			if u.Outcome.State == dispatch.StateFailed {
				log.Println("WARN: controller state is unknown after a failed run; restart the session before continuing")
			}
		}
		a.sse.SendMessage(progressChannel, sse.NewMessage(strconv.Itoa(u.Completed), string(data), event))
	}
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		log.Println("invalid path '" + name + "'")
		return false, ""
	}
	dir := string(base)
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

// start arms and starts b, or responds 409 if a run is already active.
// onStart runs with a.mx held, before any update of the run is handled.
func (a *api) start(w http.ResponseWriter, b machine.Batch, onStart func(runID string)) {
	a.mx.Lock()
	defer a.mx.Unlock()

	err := a.w.Arm(b)
	if err == nil {
		err = a.w.Start(a.ctx)
	}
	if errors.Is(err, dispatch.ErrInvalidState) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("ERROR: start: %+v", err)
		http.Error(w, err.Error(), 500)
		return
	}

	s := a.w.Status()
	if onStart != nil {
		onStart(s.RunID)
	}
	writeJSON(w, http.StatusAccepted, s)
}

func (a *api) planOptions() plan.Options {
	a.mx.Lock()
	defer a.mx.Unlock()
	opt := plan.Options{Granularity: a.granularity}
	if a.mesh != nil {
		opt.Mesh = a.mesh
	}
	return opt
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	start := a.c.Context()
	opt := a.planOptions()

	var batch machine.Batch
	var err error
	if file := req.FormValue("file"); file != "" {
		ok, name := safePath(a.dataDir, file)
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		batch, err = plan.ParseFile(name, start, opt)
		if os.IsNotExist(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	} else {
		batch, err = plan.BuildWith(gcode.NewParser(req.Body), start, opt)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.start(w, batch, nil)
}

func (a *api) cancel(w http.ResponseWriter, req *http.Request) {
	a.w.RequestCancel()
	writeJSON(w, http.StatusAccepted, a.w.Status())
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.w.Status())
}

func (a *api) probeGrid(w http.ResponseWriter, req *http.Request) {
	var err error
	parse := func(param string) (val float64) {
		if err != nil {
			return 0
		}
		val, err = strconv.ParseFloat(req.FormValue(param), 64)
		return val
	}
	var opt plan.GridOptions
	opt.FeedRate = parse("feedRate")
	opt.MaxTravel = parse("maxZTravel")
	opt.DistanceX = parse("xDist")
	opt.DistanceY = parse("yDist")
	opt.Granularity = parse("granularity")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := a.c.Context()
	batch, err := plan.ProbeGrid(start, opt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.start(w, batch, func(id string) {
		a.probe = &probeRun{id: id, wco: start.WCO()}
	})
}

func (a *api) collectProbe(u dispatch.Update) {
	a.mx.Lock()
	defer a.mx.Unlock()
	p := a.probe
	if p == nil || p.id != u.RunID {
		return
	}

	if res, ok := grbl.FindProbe(u.Response); ok && u.Outcome == nil {
		if !res.Valid {
			log.Printf("WARN: probe %d: no contact", len(p.points)+1)
		} else {
			p.points = append(p.points, res.Point.Sub(p.wco))
		}
	}
	if u.Outcome == nil {
		return
	}

	a.probe = nil
	if u.Outcome.State != dispatch.StateCompleted || len(p.points) == 0 {
		return
	}
	points := meshlevel.OffsetFrom(p.points[0].Z, p.points)
	err := a.saveGrid(points)
	if err != nil {
		log.Printf("ERROR: save probe grid: %+v", err)
	}
	m, err := meshlevel.NewMesh(points)
	if err != nil {
		log.Printf("WARN: probe grid is not usable for leveling: %v", err)
		return
	}
	a.mesh = m
	log.Printf("Leveling enabled from %d probe points.", len(points))
}

func (a *api) saveGrid(points []coord.Point) error {
	_, name := safePath(a.dataDir, gridFile)
	err := os.MkdirAll(filepath.Dir(name), 0755)
	if err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(points)
}

func (a *api) loadLevel(w http.ResponseWriter, req *http.Request) {
	file := req.FormValue("file")
	if file == "" {
		file = gridFile
	}
	ok, name := safePath(a.dataDir, file)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	m, err := loadMesh(name)
	if os.IsNotExist(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mx.Lock()
	a.mesh = m
	a.mx.Unlock()
}

func (a *api) clearLevel(w http.ResponseWriter, req *http.Request) {
	a.mx.Lock()
	a.mesh = nil
	a.mx.Unlock()
}

func loadMesh(name string) (*meshlevel.Mesh, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return meshlevel.ReadMesh(f)
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.MkdirAll(filepath.Dir(name), 0755)
	if err != nil {
		log.Printf("ERROR: mkdir '%s': %+v", filepath.Dir(name), err)
		http.Error(w, err.Error(), 500)
		return
	}
	f, err := os.Create(name)
	if err != nil {
		log.Printf("ERROR: create '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		log.Printf("ERROR: write '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		log.Printf("ERROR: delete '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}
