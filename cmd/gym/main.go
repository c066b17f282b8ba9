package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seanhlewis/mcagentgym/internal/agent"
	"github.com/seanhlewis/mcagentgym/internal/config"
	"github.com/seanhlewis/mcagentgym/internal/controller"
	"github.com/seanhlewis/mcagentgym/internal/inference"
	"github.com/seanhlewis/mcagentgym/internal/persistence/indexdb"
	"github.com/seanhlewis/mcagentgym/internal/persistence/steplog"
	"github.com/seanhlewis/mcagentgym/internal/protocol"
	"github.com/seanhlewis/mcagentgym/internal/skills"
	"github.com/seanhlewis/mcagentgym/internal/transport/gamews"
)

func main() {
	var (
		configPath = flag.String("config", "./gym.yaml", "gym config path")
		addr       = flag.String("addr", ":9091", "http listen address (healthz/metrics)")
		serverURL  = flag.String("server", "", "game server ws url (overrides config)")
		inferURL   = flag.String("inference", "", "inference endpoint url (overrides config)")
		agentCount = flag.Int("agents", 0, "agent count (overrides config personas when > 0)")
		seed       = flag.Int64("seed", 0, "run seed (overrides config when nonzero)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite step index (JSONL log still written)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[gym] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("config not found (%s); using defaults", *configPath)
			cfg = config.Config{}
			cfg.ApplyDefaults()
		} else {
			logger.Fatalf("load config: %v", err)
		}
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *inferURL != "" {
		cfg.Inference.URL = *inferURL
	}
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if *agentCount > 0 {
		// Scaling up from the command line mints extra personas; their names
		// come from the username pool.
		for len(cfg.Agents) < *agentCount {
			cfg.Agents = append(cfg.Agents, config.Persona{})
		}
		cfg.Agents = cfg.Agents[:*agentCount]
		cfg.ApplyDefaults()
	}

	pool, err := buildNamePool(cfg.Run)
	if err != nil {
		logger.Fatalf("name pool: %v", err)
	}

	_ = os.MkdirAll(cfg.Log.Dir, 0o755)
	steps := steplog.NewWriter(cfg.Log.Dir)
	defer steps.Close()
	recorders := []controller.Recorder{jsonlRecorder{w: steps, log: logger}}

	// Optional: sqlite step index (read model; the JSONL log stays the source
	// of truth).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(cfg.Log.IndexDB)
		if err != nil {
			logger.Fatalf("open step index: %v", err)
		}
		recorders = append(recorders, idx)
	}
	if idx != nil {
		defer idx.Close()
	}

	var ctl *controller.Controller
	client := gamews.New(gamews.Config{
		URL:   cfg.Server.URL,
		Name:  "gym",
		Token: cfg.Server.Token,
	}, gamews.Hooks{
		OnEvent:      func(em protocol.EventMsg) { ctl.IngestEvent(em) },
		OnTaskStatus: func(st protocol.TaskStatusMsg) { ctl.IngestTaskStatus(st) },
	})

	backend := inference.NewHTTPBackend(inference.HTTPConfig{
		URL:      cfg.Inference.URL,
		Model:    cfg.Inference.Model,
		Timeout:  time.Duration(cfg.Inference.TimeoutSeconds) * time.Second,
		RetryMax: cfg.Inference.RetryMax,
	}, log.New(os.Stdout, "[inference] ", log.LstdFlags|log.Lmicroseconds))

	ctl, err = controller.New(controller.Options{
		Agents:             agentConfigs(cfg),
		Backend:            backend,
		Transport:          client,
		Skills:             skills.NewRemote(client),
		Recorders:          recorders,
		Tasks:              cfg.Tasks,
		FeederMode:         cfg.Run.FeederMode,
		Names:              pool,
		TickInterval:       time.Duration(cfg.Run.TickMs) * time.Millisecond,
		StepDelay:          time.Duration(cfg.Run.StepDelayMs) * time.Millisecond,
		MaxConcurrent:      cfg.Inference.MaxConcurrent,
		MaxRunTime:         time.Duration(cfg.Run.MaxRunSeconds) * time.Second,
		StopAfterFailures:  cfg.Run.StopAfterFailures,
		StopAfterSuccesses: cfg.Run.StopAfterSuccesses,
		Seed:               cfg.Run.Seed,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatalf("controller: %v", err)
	}
	if idx != nil {
		idx.RecordRun(ctl.RunID(), time.Now(), ctl.AgentNames())
	}

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(ctl, client, idx))
	if envBool("GYM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	client.Start()
	g.Go(func() error {
		<-ctx.Done()
		client.Close()
		return nil
	})

	g.Go(func() error {
		// The run ending for any reason brings the sidecar and transport down.
		defer cancel()
		if err := ctl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("run: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// agentConfigs maps the YAML personas onto orchestrator configs. Suspicion
// and idle tuning is shared; persona and seed are per agent.
func agentConfigs(cfg config.Config) []agent.Config {
	out := make([]agent.Config, 0, len(cfg.Agents))
	for _, p := range cfg.Agents {
		out = append(out, agent.Config{
			Persona: agent.Persona{
				Name:         p.Name,
				Traits:       p.Traits,
				SpeechStyle:  p.SpeechStyle,
				MemoryWindow: p.MemoryWindow,
			},
			Suspicion: agent.SuspicionConfig{
				Keywords:          cfg.Suspicion.Keywords,
				Strategies:        cfg.Suspicion.Strategies,
				Cooldown:          time.Duration(cfg.Suspicion.CooldownSeconds) * time.Second,
				EscalatedCooldown: time.Duration(cfg.Suspicion.EscalatedCooldownSeconds) * time.Second,
				Grace:             time.Duration(cfg.Suspicion.GraceSeconds) * time.Second,
			},
			Idle: agent.IdleConfig{
				MinGap: time.Duration(cfg.Idle.MinGapMs) * time.Millisecond,
				MaxGap: time.Duration(cfg.Idle.MaxGapMs) * time.Millisecond,
			},
			PromptBudget: cfg.Inference.PromptBudget,
		})
	}
	return out
}

func buildNamePool(run config.Run) (*controller.NamePool, error) {
	seed := run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	if run.NameFile == "" {
		return controller.NewNamePool(nil, rng), nil
	}
	names, err := controller.LoadNameFile(run.NameFile)
	if err != nil {
		return nil, err
	}
	return controller.NewLiteralPool(names, rng), nil
}

// jsonlRecorder adapts the step-log writer to the controller's
// fire-and-forget recording hook. Write errors are logged, not propagated.
type jsonlRecorder struct {
	w   *steplog.Writer
	log *log.Logger
}

func (r jsonlRecorder) Record(rec steplog.Record) {
	if err := r.w.Write(rec); err != nil {
		r.log.Printf("steplog: %v", err)
	}
}

func metricsHandler(ctl *controller.Controller, client *gamews.Client, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		s := ctl.Snapshot()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP gym_run_uptime_seconds Seconds since the run started.\n")
		fmt.Fprintf(rw, "# TYPE gym_run_uptime_seconds gauge\n")
		fmt.Fprintf(rw, "gym_run_uptime_seconds{run=%q} %.0f\n", s.RunID, s.Now.Sub(s.Started).Seconds())

		fmt.Fprintf(rw, "# HELP gym_inference_inflight In-flight inference calls.\n")
		fmt.Fprintf(rw, "# TYPE gym_inference_inflight gauge\n")
		fmt.Fprintf(rw, "gym_inference_inflight{run=%q} %d\n", s.RunID, s.Inflight)

		fmt.Fprintf(rw, "# HELP gym_inference_queued Inference calls waiting for a concurrency slot.\n")
		fmt.Fprintf(rw, "# TYPE gym_inference_queued gauge\n")
		fmt.Fprintf(rw, "gym_inference_queued{run=%q} %d\n", s.RunID, s.Queued)

		fmt.Fprintf(rw, "# HELP gym_loop_drops_total Batches dropped at the loop inbox.\n")
		fmt.Fprintf(rw, "# TYPE gym_loop_drops_total counter\n")
		fmt.Fprintf(rw, "gym_loop_drops_total{run=%q,queue=%q} %d\n", s.RunID, "events", s.EventDrops)
		fmt.Fprintf(rw, "gym_loop_drops_total{run=%q,queue=%q} %d\n", s.RunID, "statuses", s.StatusDrops)

		fmt.Fprintf(rw, "# HELP gym_gamews_connected Game server connection state.\n")
		fmt.Fprintf(rw, "# TYPE gym_gamews_connected gauge\n")
		fmt.Fprintf(rw, "gym_gamews_connected{run=%q} %d\n", s.RunID, boolGauge(client.Connected()))

		fmt.Fprintf(rw, "# HELP gym_agent_state Orchestrator state (1 = agent is in this state).\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_state gauge\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_state{agent=%q,state=%q} 1\n", a.Name, a.State)
		}

		fmt.Fprintf(rw, "# HELP gym_agent_suspicion Suspicion level (1 = agent is at this level).\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_suspicion gauge\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_suspicion{agent=%q,level=%q} 1\n", a.Name, a.Suspicion)
		}

		fmt.Fprintf(rw, "# HELP gym_agent_steps_total Applied decision steps.\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_steps_total counter\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_steps_total{agent=%q} %d\n", a.Name, a.Steps)
		}

		fmt.Fprintf(rw, "# HELP gym_agent_successes_total Completed skill tasks.\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_successes_total counter\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_successes_total{agent=%q} %d\n", a.Name, a.Successes)
		}

		fmt.Fprintf(rw, "# HELP gym_agent_failures Consecutive skill failures.\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_failures gauge\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_failures{agent=%q} %d\n", a.Name, a.Failures)
		}

		fmt.Fprintf(rw, "# HELP gym_agent_stale_results_total Inference results discarded as stale.\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_stale_results_total counter\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_stale_results_total{agent=%q} %d\n", a.Name, a.StaleDrops)
		}

		fmt.Fprintf(rw, "# HELP gym_agent_degraded Agent flagged degraded.\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_degraded gauge\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_degraded{agent=%q} %d\n", a.Name, boolGauge(a.Degraded))
		}

		fmt.Fprintf(rw, "# HELP gym_agent_retired Agent retired from the run.\n")
		fmt.Fprintf(rw, "# TYPE gym_agent_retired gauge\n")
		for _, a := range s.Agents {
			fmt.Fprintf(rw, "gym_agent_retired{agent=%q} %d\n", a.Name, boolGauge(a.Retired))
		}

		writeIndexMetrics(rw, idx)
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	st := idx.Stats()

	fmt.Fprintf(rw, "# HELP gym_index_queue_depth Current step index write queue depth.\n")
	fmt.Fprintf(rw, "# TYPE gym_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "gym_index_queue_depth %d\n", st.QueueDepth)

	fmt.Fprintf(rw, "# HELP gym_index_queue_capacity Step index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE gym_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "gym_index_queue_capacity %d\n", st.QueueCapacity)

	fmt.Fprintf(rw, "# HELP gym_index_enqueued_total Total step index enqueue attempts.\n")
	fmt.Fprintf(rw, "# TYPE gym_index_enqueued_total counter\n")
	fmt.Fprintf(rw, "gym_index_enqueued_total %d\n", st.EnqueuedTotal)

	fmt.Fprintf(rw, "# HELP gym_index_dropped_total Records dropped because the write queue was full.\n")
	fmt.Fprintf(rw, "# TYPE gym_index_dropped_total counter\n")
	fmt.Fprintf(rw, "gym_index_dropped_total{kind=%q} %d\n", "run", st.DropRunTotal)
	fmt.Fprintf(rw, "gym_index_dropped_total{kind=%q} %d\n", "step", st.DropStepTotal)
	fmt.Fprintf(rw, "gym_index_dropped_total{kind=%q} %d\n", "incident", st.DropIncidentTotal)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
