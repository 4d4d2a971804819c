package web

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/gkaf89/IPU-examples/conf"
	"github.com/gkaf89/IPU-examples/stats"
	"github.com/gkaf89/IPU-examples/train"
)

const sessionName = "ipu-monitor-session"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Monitor collects the statistics of a training run and serves them as
// web pages, pushing a notification over the websocket whenever a new
// entry arrives. Its OnLog and OnEval methods plug into the trainer.
type Monitor struct {
	*Templates
	Conf    conf.Config
	StartFn func()
	StopFn  func()
	sync.Mutex
	entries []train.Entry
	evals   []train.EvalPoint
	conns   []*websocket.Conn
	tput    stats.Average
	started time.Time
	running bool
}

// NewMonitor creates the monitor for the given run config.
func NewMonitor(t *Templates, c conf.Config) *Monitor {
	m := &Monitor{Conf: c, started: time.Now()}
	m.Templates = t.Clone().Select("/train")
	return m
}

// OnLog records a training entry and notifies the connected pages.
func (m *Monitor) OnLog(e train.Entry) {
	m.Lock()
	defer m.Unlock()
	m.entries = append(m.entries, e)
	m.tput.Add(e.PerSec)
	m.notify()
}

// OnEval records a validation result.
func (m *Monitor) OnEval(iteration int, epoch float64, r train.Result) {
	m.Lock()
	defer m.Unlock()
	m.evals = append(m.evals, train.EvalPoint{Iteration: iteration, Epoch: epoch, Result: r})
	m.notify()
}

func (m *Monitor) notify() {
	live := m.conns[:0]
	for _, conn := range m.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("update")); err == nil {
			live = append(live, conn)
		} else {
			conn.Close()
		}
	}
	m.conns = live
}

// Routes registers the monitor pages on the router.
func (m *Monitor) Routes(r *mux.Router) {
	r.Handle("/", http.RedirectHandler("/train/stats", http.StatusFound))
	r.HandleFunc("/train/stats", m.statsPage)
	r.HandleFunc("/train/start", m.control(true)).Methods("POST")
	r.HandleFunc("/train/stop", m.control(false)).Methods("POST")
	r.HandleFunc("/config", m.configPage)
	r.HandleFunc("/ws", m.websocketHandler)
}

// statsView is the per request template data for the stats page.
type statsView struct {
	*Monitor
	Flashes []string
}

func (m *Monitor) statsPage(w http.ResponseWriter, r *http.Request) {
	flashes := m.flashes(w, r)
	m.Lock()
	defer m.Unlock()
	m.Templates.Select("/train")
	if err := m.ExecuteTemplate(w, "stats", statsView{Monitor: m, Flashes: flashes}); err != nil {
		logError(w, err)
	}
}

func (m *Monitor) configPage(w http.ResponseWriter, r *http.Request) {
	m.Lock()
	defer m.Unlock()
	m.Templates.Select("/config")
	if err := m.ExecuteTemplate(w, "config", m); err != nil {
		logError(w, err)
	}
}

func (m *Monitor) control(start bool) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Lock()
		defer m.Unlock()
		switch {
		case start && m.running:
			log.Println("skip start - already running")
		case start && m.StartFn != nil:
			m.running = true
			m.started = time.Now()
			go m.StartFn()
			m.addFlash(w, r, "training started")
		case !start && m.StopFn != nil:
			m.running = false
			m.StopFn()
			m.addFlash(w, r, "stop requested")
		}
		http.Redirect(w, r, "/train/stats", http.StatusFound)
	}
}

// addFlash queues a one off message shown on the next stats page load.
func (m *Monitor) addFlash(w http.ResponseWriter, r *http.Request, msg string) {
	session, _ := m.store.Get(r, sessionName)
	session.AddFlash(msg)
	if err := session.Save(r, w); err != nil {
		log.Println("error saving session:", err)
	}
}

func (m *Monitor) flashes(w http.ResponseWriter, r *http.Request) []string {
	session, _ := m.store.Get(r, sessionName)
	var msgs []string
	for _, f := range session.Flashes() {
		if s, ok := f.(string); ok {
			msgs = append(msgs, s)
		}
	}
	if len(msgs) > 0 {
		if err := session.Save(r, w); err != nil {
			log.Println("error saving session:", err)
		}
	}
	return msgs
}

func (m *Monitor) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logError(w, err)
		return
	}
	m.Lock()
	m.conns = append(m.conns, conn)
	m.Unlock()
}

// Done marks the run as finished.
func (m *Monitor) Done() {
	m.Lock()
	m.running = false
	m.Unlock()
}

// template accessors

func (m *Monitor) Heading() string {
	last := m.last()
	return fmt.Sprintf("%s on %s: epoch %.2f of %g", m.Conf.Model, m.Conf.DataSet,
		last.Epoch, m.Conf.Epochs)
}

func (m *Monitor) RunTime() string {
	if len(m.entries) == 0 {
		return ""
	}
	return fmt.Sprintf("run time: %s", time.Duration(m.last().TotalTime*float64(time.Second)).Round(10*time.Millisecond))
}

func (m *Monitor) ConfigText() string {
	return m.Conf.String()
}

// Throughput formats the running mean and spread of the logged samples
// per second figures.
func (m *Monitor) Throughput() template.HTML {
	if m.tput.Count == 0 {
		return ""
	}
	return m.tput.HTML() + " samples/sec"
}

func (m *Monitor) last() train.Entry {
	if len(m.entries) == 0 {
		return train.Entry{}
	}
	return m.entries[len(m.entries)-1]
}

// StatRow is one formatted row of the stats table.
type StatRow struct {
	train.Entry
}

func (s StatRow) AccPct() float64 { return s.Entry.AccAvg * 100 }

// LatestStats returns the most recent entries, newest first.
func (m *Monitor) LatestStats(n int) []StatRow {
	res := []StatRow{}
	for i := len(m.entries) - 1; i >= 0 && i > len(m.entries)-1-n; i-- {
		res = append(res, StatRow{m.entries[i]})
	}
	return res
}
