package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pathplanner/internal/config"
)

// SettingsPayload is the planner tuning exposed on /api/settings.
type SettingsPayload struct {
	GradientDistance  float32 `json:"gradient_distance"`
	GradientSpeed     float32 `json:"gradient_speed"`
	RTBAltitudeOffset float32 `json:"rtb_altitude_offset"`
	LandDescent       float32 `json:"land_descent"`
}

// SettingsPayloadIn is the strict POST schema. Every key is required.
type SettingsPayloadIn struct {
	GradientDistance  *float32 `json:"gradient_distance"`
	GradientSpeed     *float32 `json:"gradient_speed"`
	RTBAltitudeOffset *float32 `json:"rtb_altitude_offset"`
	LandDescent       *float32 `json:"land_descent"`
}

var settingsPostKeys = []string{
	"gradient_distance",
	"gradient_speed",
	"rtb_altitude_offset",
	"land_descent",
}

// decodeStrictObject decodes a single JSON object into out. It rejects
// unknown, duplicate, null and missing keys as well as trailing data.
func decodeStrictObject(body []byte, keys []string, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))

	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(keys))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return errors.New("invalid json: expected object")
	}

	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return errors.New("invalid json: expected string key")
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid json: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}
		if strings.TrimSpace(string(raw)) == "null" {
			return fmt.Errorf("invalid json: %q cannot be null", key)
		}
	}

	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	delim, ok = end.(json.Delim)
	if !ok || delim != '}' {
		return errors.New("invalid json: expected end of object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid json: trailing data")
	}

	for _, k := range keys {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("invalid json: missing required key %q", k)
		}
	}

	dec2 := json.NewDecoder(bytes.NewReader(body))
	dec2.DisallowUnknownFields()
	if err := dec2.Decode(out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func configToSettingsPayload(cfg config.Config) SettingsPayload {
	p := SettingsPayload{
		GradientDistance: cfg.Planner.Gradient.Distance,
		GradientSpeed:    cfg.Planner.Gradient.Speed,
		LandDescent:      cfg.Planner.LandDescent,
	}
	if cfg.Planner.RTBAltitudeOffset != nil {
		p.RTBAltitudeOffset = *cfg.Planner.RTBAltitudeOffset
	}
	return p
}

// applySettingsPayload copies p into cfg. Range checks are left to
// config.DefaultAndValidate, except that zero is rejected here where the
// config layer would silently substitute a default.
func applySettingsPayload(cfg *config.Config, p SettingsPayloadIn) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if *p.GradientDistance <= 0 {
		return errors.New("gradient_distance must be > 0")
	}
	if *p.GradientSpeed <= 0 {
		return errors.New("gradient_speed must be > 0")
	}
	if *p.LandDescent <= 0 {
		return errors.New("land_descent must be > 0")
	}
	cfg.Planner.Gradient.Distance = *p.GradientDistance
	cfg.Planner.Gradient.Speed = *p.GradientSpeed
	offset := *p.RTBAltitudeOffset
	cfg.Planner.RTBAltitudeOffset = &offset
	cfg.Planner.LandDescent = *p.LandDescent
	return nil
}

type SettingsStore struct {
	ConfigPath string
	// Apply, when set, is called after validation and before saving.
	// If Apply returns an error, the config is not saved.
	Apply func(cfg config.Config) error
}

func (s SettingsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
			return
		}

		switch r.Method {
		case http.MethodGet:
			cfg, err := config.Load(s.ConfigPath)
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, configToSettingsPayload(cfg))

		case http.MethodPost:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
				return
			}
			var p SettingsPayloadIn
			if err := decodeStrictObject(body, settingsPostKeys, &p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			oldCfg, err := config.Load(s.ConfigPath)
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			cfg := oldCfg
			if err := applySettingsPayload(&cfg, p); err != nil {
				http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
				return
			}
			if err := config.DefaultAndValidate(&cfg); err != nil {
				http.Error(w, fmt.Sprintf("invalid config: %v", err), http.StatusBadRequest)
				return
			}

			if s.Apply != nil {
				if err := s.Apply(cfg); err != nil {
					http.Error(w, fmt.Sprintf("apply failed: %v", err), http.StatusBadRequest)
					return
				}
			}
			if err := config.Save(s.ConfigPath, cfg); err != nil {
				if s.Apply != nil {
					_ = s.Apply(oldCfg)
				}
				http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, configToSettingsPayload(cfg))

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
