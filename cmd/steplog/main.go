// Command steplog inspects the compressed JSONL step logs a gym run writes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/seanhlewis/mcagentgym/internal/persistence/steplog"
)

func main() {
	var (
		dir       = flag.String("dir", "./runlogs", "step log directory")
		agentName = flag.String("agent", "", "only records for this agent")
		runID     = flag.String("run", "", "only records for this run id")
		kind      = flag.String("kind", "", "only this record kind (step|suspicion)")
		tail      = flag.Int("tail", 0, "show only the last N matching records")
	)
	flag.Parse()

	files, err := steplog.Files(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list step logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no step logs under %s\n", *dir)
		os.Exit(2)
	}

	var matched []steplog.Record
	total := 0
	for _, path := range files {
		recs, err := steplog.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		total += len(recs)
		for _, rec := range recs {
			if *agentName != "" && rec.Agent != *agentName {
				continue
			}
			if *runID != "" && rec.RunID != *runID {
				continue
			}
			if *kind != "" && rec.Kind != *kind {
				continue
			}
			matched = append(matched, rec)
		}
	}
	if *tail > 0 && len(matched) > *tail {
		matched = matched[len(matched)-*tail:]
	}

	for _, rec := range matched {
		fmt.Println(formatRecord(rec))
	}
	fmt.Fprintf(os.Stderr, "%d files, %d records, %d shown\n", len(files), total, len(matched))
}

func formatRecord(rec steplog.Record) string {
	ts := time.UnixMilli(rec.TS).UTC().Format("2006-01-02T15:04:05.000Z")
	if rec.Kind == steplog.KindSuspicion {
		return fmt.Sprintf("%s %s suspicion level=%s strategy=%s %q", ts, rec.Agent, rec.Level, rec.Strategy, rec.Line)
	}
	return fmt.Sprintf("%s %s #%d %s %dms %s", ts, rec.Agent, rec.Seq, rec.State, rec.LatencyMS, summarize(rec))
}

func summarize(rec steplog.Record) string {
	s := decisionLine(rec.Decision)
	switch {
	case rec.Err != "" && s == "":
		return fmt.Sprintf("err=%q", rec.Err)
	case rec.Err != "":
		return fmt.Sprintf("%s err=%q", s, rec.Err)
	case s == "":
		return "-"
	}
	return s
}

// decisionLine renders the stored decision JSON as one readable token. An
// undecodable blob is shown raw rather than hidden.
func decisionLine(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var d struct {
		Kind   string          `json:"kind"`
		Text   string          `json:"text"`
		Skill  string          `json:"skill"`
		Params json.RawMessage `json:"params"`
		Reason string          `json:"reason"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return string(raw)
	}
	switch d.Kind {
	case "speak":
		return fmt.Sprintf("speak %q", d.Text)
	case "act":
		if len(d.Params) > 0 {
			return fmt.Sprintf("act %s %s", d.Skill, d.Params)
		}
		return "act " + d.Skill
	case "idle":
		if d.Reason != "" {
			return fmt.Sprintf("idle (%s)", d.Reason)
		}
		return "idle"
	case "":
		return ""
	}
	return string(raw)
}
