package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"setup-outcome-lab/internal/metrics"
	"setup-outcome-lab/internal/settlement"
)

// topNotEligibleLimit caps the rejection reasons returned by the trigger.
const topNotEligibleLimit = 10

// evaluateResponse is the trigger reply. Debug extras are attached only on
// request.
type evaluateResponse struct {
	Metrics               settlement.Metrics       `json:"metrics"`
	Processed             int                      `json:"processed"`
	DurationMs            int64                    `json:"durationMs"`
	DryRun                bool                     `json:"dryRun"`
	TopNotEligibleReasons []settlement.ReasonCount `json:"topNotEligibleReasons"`
	*debugExtras
}

type debugExtras struct {
	Stats                    settlement.SelectionStats     `json:"stats"`
	SampleSetupIDs           []string                      `json:"sampleSetupIds"`
	ReasonSamples            map[string][]string           `json:"reasonSamples,omitempty"`
	MismatchedAssets         map[string]int                `json:"mismatchedAssets,omitempty"`
	MismatchedPlaybooks      map[string]int                `json:"mismatchedPlaybooks,omitempty"`
	PlaybookMatchStats       settlement.PlaybookMatchStats `json:"playbookMatchStats"`
	EffectivePlaybookSamples []settlement.PlaybookSample   `json:"effectivePlaybookSamples,omitempty"`
	Inserted                 int                           `json:"inserted"`
	Updated                  int                           `json:"updated"`
	Unchanged                int                           `json:"unchanged"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	params, err := parseRunParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	start := s.now()
	res, err := s.batch.Run(r.Context(), "cron", params)
	durationMs := s.now().Sub(start).Milliseconds()
	if errors.Is(err, settlement.ErrBatchInProgress) {
		writeError(w, http.StatusConflict, "BATCH_IN_PROGRESS", err.Error())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to evaluate outcomes")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	resp := evaluateResponse{
		Metrics:    res.Metrics,
		Processed:  res.Processed,
		DurationMs: durationMs,
		DryRun:     res.DryRun,

		TopNotEligibleReasons: settlement.RankReasons(res.Reasons, topNotEligibleLimit),
	}
	if params.Debug {
		resp.debugExtras = &debugExtras{
			Stats:                    res.Stats,
			SampleSetupIDs:           res.SampleSetupIDs,
			ReasonSamples:            res.ReasonSamples,
			MismatchedAssets:         res.MismatchedAssets,
			MismatchedPlaybooks:      res.MismatchedPlaybooks,
			PlaybookMatchStats:       res.PlaybookMatchStats,
			EffectivePlaybookSamples: res.PlaybookSamples,
			Inserted:                 res.Inserted,
			Updated:                  res.Updated,
			Unchanged:                res.Unchanged,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := intParam(nil, q, 0, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	limit, err := intParam(nil, q, 0, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	stats, err := s.stats.Load(r.Context(), metrics.Query{
		Days:          days,
		AssetID:       q.Get("assetId"),
		PlaybookID:    q.Get("playbookId"),
		EngineVersion: q.Get("engineVersion"),
		Profile:       q.Get("profile"),
		Timeframe:     q.Get("timeframe"),
		Limit:         limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load outcome stats")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// parseRunParams reads trigger parameters from a JSON body, falling back to
// the query string per field. A body that is not JSON is ignored.
func parseRunParams(r *http.Request) (settlement.RunParams, error) {
	body := map[string]any{}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") && r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			body = map[string]any{}
		}
	}
	q := r.URL.Query()

	var p settlement.RunParams
	var err error
	if p.DaysBack, err = intParam(body, q, settlement.DefaultDaysBack, "daysBack"); err != nil {
		return p, err
	}
	if p.Limit, err = intParam(body, q, settlement.DefaultLimit, "limit"); err != nil {
		return p, err
	}
	if p.WindowBars, err = intParam(body, q, 0, "windowBars"); err != nil {
		return p, err
	}
	p.AssetID = strParam(body, q, "assetId")
	p.PlaybookID = strParam(body, q, "playbookId")
	p.DryRun = boolParam(body, q, "dryRun", "dry_run")
	p.Debug = boolParam(body, q, "debug")
	return p, nil
}

// lookup returns the first key present in the body, then in the query.
func lookup(body map[string]any, q url.Values, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := body[k]; ok && v != nil {
			return v, true
		}
	}
	for _, k := range keys {
		if q.Has(k) {
			return q.Get(k), true
		}
	}
	return nil, false
}

func intParam(body map[string]any, q url.Values, def int, keys ...string) (int, error) {
	v, ok := lookup(body, q, keys...)
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case string:
		if strings.TrimSpace(t) == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", keys[0], t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s must be an integer", keys[0])
}

func strParam(body map[string]any, q url.Values, keys ...string) string {
	v, ok := lookup(body, q, keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func boolParam(body map[string]any, q url.Values, keys ...string) bool {
	v, ok := lookup(body, q, keys...)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	}
	return false
}
