package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/playbook"
	"setup-outcome-lab/internal/storage"
)

// Selection defaults.
const (
	DefaultDaysBack = 30
	DefaultLimit    = 200
	MaxLimit        = 500
	DefaultPageSize = 50

	maxReasonSamples   = 10
	maxPlaybookSamples = 5
)

// goldAliases are the identifiers the "gold" asset filter expands to.
var goldAliases = []string{"GC=F", "XAUUSD", "XAUUSD=X", "GOLD"}

// SelectParams bounds a candidate scan.
type SelectParams struct {
	DaysBack   int    `json:"daysBack"`
	Limit      int    `json:"limit"`
	AssetID    string `json:"assetId,omitempty"`
	PlaybookID string `json:"playbookId,omitempty"`
}

// Normalize applies defaults and clamps the limit to [1, MaxLimit].
func (p SelectParams) Normalize() SelectParams {
	if p.DaysBack <= 0 {
		p.DaysBack = DefaultDaysBack
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	p.AssetID = strings.TrimSpace(p.AssetID)
	p.PlaybookID = strings.TrimSpace(p.PlaybookID)
	return p
}

// Candidate is an eligible setup together with its snapshot context.
type Candidate struct {
	Setup               domain.Setup
	SnapshotID          string
	SnapshotTime        time.Time
	AnchorTime          time.Time
	StoredPlaybookID    string
	ResolvedPlaybookID  string
	EffectivePlaybookID string
}

// PlaybookMatchStats counts how playbook-filtered setups were matched.
type PlaybookMatchStats struct {
	Stored       int `json:"stored"`
	Resolved     int `json:"resolved"`
	Incompatible int `json:"incompatible"`
}

// PlaybookSample shows how one setup's playbook was decided.
type PlaybookSample struct {
	SetupID             string `json:"setupId"`
	StoredPlaybookID    string `json:"storedPlaybookId,omitempty"`
	ResolvedPlaybookID  string `json:"resolvedPlaybookId,omitempty"`
	EffectivePlaybookID string `json:"effectivePlaybookId"`
	ResolveReason       string `json:"resolveReason,omitempty"`
	Compatible          bool   `json:"compatible"`
}

// SelectionStats counts setups seen during the scan.
type SelectionStats struct {
	SnapshotsSeen int `json:"snapshotsSeen"`
	RawSetups     int `json:"rawSetups"`
	Eligible      int `json:"eligible"`
	NotSwingDaily int `json:"notSwingDaily"`
	Duplicates    int `json:"duplicates"`
}

// Selection is the result of a candidate scan.
type Selection struct {
	Candidates          []*Candidate
	Reasons             map[string]int
	ReasonSamples       map[string][]string
	MismatchedAssets    map[string]int
	MismatchedPlaybooks map[string]int
	PlaybookMatchStats  PlaybookMatchStats
	PlaybookSamples     []PlaybookSample
	Stats               SelectionStats
}

func newSelection() *Selection {
	return &Selection{
		Reasons:             make(map[string]int),
		ReasonSamples:       make(map[string][]string),
		MismatchedAssets:    make(map[string]int),
		MismatchedPlaybooks: make(map[string]int),
	}
}

// reject counts a rejection and keeps up to maxReasonSamples setup ids.
func (s *Selection) reject(reason, setupID string) {
	s.Reasons[reason]++
	if len(s.ReasonSamples[reason]) < maxReasonSamples {
		s.ReasonSamples[reason] = append(s.ReasonSamples[reason], setupID)
	}
}

// SelectorOptions configures a Selector.
type SelectorOptions struct {
	Snapshots storage.SnapshotStore
	Playbooks *playbook.Resolver
	PageSize  int
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Selector pages through recent snapshots and yields eligible setups.
type Selector struct {
	snapshots storage.SnapshotStore
	playbooks *playbook.Resolver
	pageSize  int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewSelector creates a Selector.
func NewSelector(opts SelectorOptions) *Selector {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Playbooks == nil {
		opts.Playbooks = playbook.NewResolver(playbook.DefaultCatalog())
	}
	return &Selector{
		snapshots: opts.Snapshots,
		playbooks: opts.Playbooks,
		pageSize:  opts.PageSize,
		now:       opts.Now,
		logger:    opts.Logger.With().Str("component", "selector").Logger(),
	}
}

// Select scans snapshots newest first until the limit is reached or the
// pages are exhausted. A setup id is admitted at most once.
func (s *Selector) Select(ctx context.Context, params SelectParams) (*Selection, error) {
	p := params.Normalize()
	filter := storage.SnapshotFilter{From: s.now().Add(-time.Duration(p.DaysBack) * 24 * time.Hour)}
	assets := expandAssetFilter(p.AssetID)
	catalog := s.playbooks.Catalog()

	sel := newSelection()
	seen := make(map[string]struct{})

	for page := 1; len(sel.Candidates) < p.Limit; page++ {
		res, err := s.snapshots.ListPaged(ctx, filter, page, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list snapshots page %d: %w", page, err)
		}

		for _, snap := range res.Snapshots {
			sel.Stats.SnapshotsSeen++
			for i := range snap.Setups {
				if len(sel.Candidates) >= p.Limit {
					break
				}
				setup := snap.Setups[i]
				sel.Stats.RawSetups++

				if _, dup := seen[setup.ID]; dup {
					sel.Stats.Duplicates++
					continue
				}
				if !setup.Profile.IsSwing() || !domain.IsDaily(setup.Timeframe) {
					sel.Stats.NotSwingDaily++
					continue
				}

				stored := strings.TrimSpace(setup.PlaybookID)
				effective, resolved, resolveReason := stored, "", ""
				if effective == "" {
					res := s.playbooks.Resolve(resolverAsset(&setup), string(setup.Profile))
					resolved, resolveReason = res.Playbook.ID, res.Reason
					effective = resolved
				}

				compatible := true
				if p.PlaybookID != "" {
					compatible = catalog.Compatible(p.PlaybookID, effective)
					switch {
					case !compatible:
						sel.PlaybookMatchStats.Incompatible++
					case stored != "":
						sel.PlaybookMatchStats.Stored++
					default:
						sel.PlaybookMatchStats.Resolved++
					}
					if len(sel.PlaybookSamples) < maxPlaybookSamples {
						sel.PlaybookSamples = append(sel.PlaybookSamples, PlaybookSample{
							SetupID:             setup.ID,
							StoredPlaybookID:    stored,
							ResolvedPlaybookID:  resolved,
							EffectivePlaybookID: effective,
							ResolveReason:       resolveReason,
							Compatible:          compatible,
						})
					}
				}

				if assets != nil && !assets.matches(&setup) {
					sel.reject(domain.ReasonAssetMismatch, setup.ID)
					sel.MismatchedAssets[assetLabel(&setup)]++
					continue
				}
				if !compatible {
					sel.reject(domain.ReasonPlaybookMismatch, setup.ID)
					sel.MismatchedPlaybooks[effective]++
					continue
				}
				if !setup.HasLevels() {
					sel.reject(domain.ReasonMissingLevels, setup.ID)
					continue
				}

				seen[setup.ID] = struct{}{}
				sel.Stats.Eligible++
				sel.Candidates = append(sel.Candidates, &Candidate{
					Setup:               setup,
					SnapshotID:          snap.ID,
					SnapshotTime:        snap.SnapshotTime,
					AnchorTime:          snap.AnchorTime(&setup),
					StoredPlaybookID:    stored,
					ResolvedPlaybookID:  resolved,
					EffectivePlaybookID: effective,
				})
			}
			if len(sel.Candidates) >= p.Limit {
				break
			}
		}

		if len(res.Snapshots) == 0 || page*s.pageSize >= res.Total {
			break
		}
	}

	s.logger.Debug().
		Int("snapshots", sel.Stats.SnapshotsSeen).
		Int("raw_setups", sel.Stats.RawSetups).
		Int("eligible", sel.Stats.Eligible).
		Msg("candidates selected")

	return sel, nil
}

// resolverAsset maps a setup to the playbook resolver's asset view.
// The bare "GOLD" id resolves like the futures contract.
func resolverAsset(setup *domain.Setup) playbook.Asset {
	id := setup.AssetID
	if strings.EqualFold(id, "GOLD") {
		id = "GC=F"
	}
	if id == "" {
		id = setup.Symbol
	}
	symbol := strings.ToUpper(setup.Symbol)
	if symbol == "" {
		symbol = id
	}
	return playbook.Asset{ID: id, Symbol: symbol, Name: setup.Name}
}

func assetLabel(setup *domain.Setup) string {
	switch {
	case setup.AssetID != "":
		return setup.AssetID
	case setup.Symbol != "":
		return setup.Symbol
	}
	return "unknown"
}

// assetFilter matches asset ids or symbols case-insensitively.
type assetFilter map[string]struct{}

func expandAssetFilter(asset string) assetFilter {
	if asset == "" {
		return nil
	}
	f := make(assetFilter)
	if strings.EqualFold(asset, "gold") {
		for _, a := range goldAliases {
			f[a] = struct{}{}
		}
		return f
	}
	f[strings.ToUpper(asset)] = struct{}{}
	return f
}

func (f assetFilter) matches(setup *domain.Setup) bool {
	if _, ok := f[strings.ToUpper(setup.AssetID)]; ok {
		return true
	}
	if setup.Symbol == "" {
		return false
	}
	_, ok := f[strings.ToUpper(setup.Symbol)]
	return ok
}
