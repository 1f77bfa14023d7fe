package main

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/xtding233/pullsim/internal/batch"
	"github.com/xtding233/pullsim/internal/config"
	"github.com/xtding233/pullsim/internal/gacha"
	"github.com/xtding233/pullsim/internal/sim"
)

type simulateReq struct {
	Trials     uint64           `json:"trials"`
	BasePity   int              `json:"base_pity"`
	Seed       uint64           `json:"seed"`
	Categories []gacha.Category `json:"categories"`
}

type errResp struct {
	Err string `json:"err"`
}

type backendReq struct {
	Enabled bool `json:"enabled"`
}

type server struct {
	cfg config.Config
	sim *sim.Simulator
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /simulate runs trials with the given category set; fields left
// zero fall back to the configured run defaults.
func (s *server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req simulateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Err: "invalid request body"})
		return
	}
	if req.Trials == 0 {
		req.Trials = s.cfg.Run.Trials
	}
	if len(req.Categories) == 0 {
		req.Categories = s.cfg.Run.Categories
	}

	report, err := s.sim.Run(r.Context(), sim.Request{
		Trials:     req.Trials,
		Categories: req.Categories,
		BasePity:   req.BasePity,
		Seed:       req.Seed,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gacha.ErrInvalidConfig) || errors.Is(err, gacha.ErrPityRange) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errResp{Err: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /backend reports availability/enabled status.
// POST /backend toggles the batched path.
func (s *server) handleBackend(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sim.Backend().Status())
	case http.MethodPost:
		var req backendReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResp{Err: "invalid request body"})
			return
		}
		s.sim.Backend().SetEnabled(req.Enabled)
		writeJSON(w, http.StatusOK, s.sim.Backend().Status())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func main() {
	cfgPath := pflag.String("config", "", "path to YAML config file")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	simulator := sim.New(sim.Config{
		Workers: cfg.Workers,
		Curve:   cfg.PityCurve(),
	})
	defer simulator.Close()
	simulator.Backend().SetEnabled(cfg.Backend.Enabled)

	unsub := simulator.Backend().OnStatusChange(func(st batch.Status) {
		log.WithFields(log.Fields{"available": st.Available, "enabled": st.Enabled}).Info("backend status changed")
	})
	defer unsub()

	srv := &server{cfg: cfg, sim: simulator}
	http.HandleFunc("/simulate", srv.handleSimulate)
	http.HandleFunc("/backend", srv.handleBackend)

	log.WithField("listen", cfg.Listen).Info("listening")
	log.Fatal(http.ListenAndServe(cfg.Listen, nil))
}
