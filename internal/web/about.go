package web

import (
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"pathplanner/internal/plans"
	"pathplanner/internal/telemetry"
)

const serviceName = "pathplanner"

// AboutResponse describes the running binary and what it speaks, so a
// ground station can check compatibility before subscribing.
type AboutResponse struct {
	Service       string    `json:"service"`
	NowUTC        string    `json:"now_utc"`
	GoVersion     string    `json:"go_version"`
	Build         BuildInfo `json:"build"`
	FlightModes   []string  `json:"flight_modes"`
	PathMessageID string    `json:"path_message_id"`
}

type BuildInfo struct {
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	Time       string `json:"time,omitempty"`
}

func readBuildInfo() BuildInfo {
	var out BuildInfo
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.ModulePath = bi.Main.Path
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		case "vcs.time":
			out.Time = s.Value
		}
	}
	return out
}

func flightModeNames() []string {
	out := make([]string, 0, int(plans.ModeAutoCruise))
	for m := plans.ModePositionHold; m <= plans.ModeAutoCruise; m++ {
		out = append(out, m.String())
	}
	return out
}

func AboutHandler() http.Handler {
	build := readBuildInfo()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, AboutResponse{
			Service:       serviceName,
			NowUTC:        time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion:     runtime.Version(),
			Build:         build,
			FlightModes:   flightModeNames(),
			PathMessageID: fmt.Sprintf("0x%02X", telemetry.MsgIDPath),
		})
	})
}
