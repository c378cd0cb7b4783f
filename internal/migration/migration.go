// Package migration implements backlog layout migration and the
// deprecation audit/plan/apply pipeline (spec §4.K): moving a legacy
// backlog directory onto the `workmesh/` layout, and auditing a backlog
// for legacy truth-ledger candidates and deprecated config flags worth
// cleaning up.
package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/luislobo/workmesh/internal/backlog"
	"github.com/luislobo/workmesh/internal/config"
	"github.com/luislobo/workmesh/internal/scope"
	"github.com/luislobo/workmesh/internal/session"
	"github.com/luislobo/workmesh/internal/task"
	"github.com/luislobo/workmesh/internal/truth"
)

// Result describes a completed layout migration.
type Result struct {
	From string
	To   string
}

// MigrateLayout moves a legacy backlog directory onto targetRoot (e.g.
// "workmesh"), refusing to overwrite an existing destination or to
// "migrate" a resolution already at that layout.
func MigrateLayout(res *backlog.Resolution, targetRoot string) (Result, error) {
	targetDir := filepath.Join(res.RepoRoot, targetRoot)
	if _, err := os.Stat(targetDir); err == nil {
		return Result{}, fmt.Errorf("migration: destination already exists: %s", targetDir)
	}
	if res.Layout == backlog.LayoutWorkmesh && targetRoot == "workmesh" {
		return Result{}, fmt.Errorf("migration: backlog already at %s", res.BacklogDir)
	}
	if res.Layout == backlog.LayoutHiddenWorkmesh && targetRoot == ".workmesh" {
		return Result{}, fmt.Errorf("migration: backlog already at %s", res.BacklogDir)
	}

	switch res.Layout {
	case backlog.LayoutBacklog, backlog.LayoutProject:
		if err := os.Rename(res.BacklogDir, targetDir); err != nil {
			return Result{}, fmt.Errorf("migration: rename backlog dir: %w", err)
		}
	case backlog.LayoutRootTasks, backlog.LayoutTasksDir:
		if err := os.MkdirAll(targetDir, 0o750); err != nil {
			return Result{}, fmt.Errorf("migration: create target dir: %w", err)
		}
		tasksDir := filepath.Join(res.BacklogDir, "tasks")
		if info, err := os.Stat(tasksDir); err == nil && info.IsDir() {
			if err := os.Rename(tasksDir, filepath.Join(targetDir, "tasks")); err != nil {
				return Result{}, fmt.Errorf("migration: rename tasks dir: %w", err)
			}
		}
		if err := moveIfExists(res.BacklogDir, targetDir, ".audit.log"); err != nil {
			return Result{}, err
		}
		if err := moveIfExists(res.BacklogDir, targetDir, ".index"); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("migration: unsupported layout for migration")
	}

	return Result{From: res.BacklogDir, To: targetDir}, nil
}

func moveIfExists(srcRoot, destRoot, name string) error {
	src := filepath.Join(srcRoot, name)
	if _, err := os.Stat(src); err != nil {
		return nil
	}
	if err := os.Rename(src, filepath.Join(destRoot, name)); err != nil {
		return fmt.Errorf("migration: move %s: %w", name, err)
	}
	return nil
}

// ActionKind names one deprecation-audit remediation.
type ActionKind string

const (
	ActionLayoutToWorkmesh         ActionKind = "layout_backlog_to_workmesh"
	ActionFocusToContext           ActionKind = "focus_to_context"
	ActionTruthBackfill            ActionKind = "truth_backfill"
	ActionSessionHandoffEnrichment ActionKind = "session_handoff_enrichment"
	ActionConfigCleanup            ActionKind = "config_cleanup"
)

// actionOrder is the fixed layout → context → truth → sessions → config
// plan order.
var actionOrder = []ActionKind{
	ActionLayoutToWorkmesh,
	ActionFocusToContext,
	ActionTruthBackfill,
	ActionSessionHandoffEnrichment,
	ActionConfigCleanup,
}

var actionReasons = map[ActionKind]string{
	ActionLayoutToWorkmesh:         "normalize legacy backlog layout",
	ActionFocusToContext:           "migrate legacy focus.json into context.json",
	ActionTruthBackfill:            "backfill legacy decision notes into structured truth records",
	ActionSessionHandoffEnrichment: "add a default structured handoff summary to sessions missing one",
	ActionConfigCleanup:            "remove deprecated migration suppression flag",
}

// Finding is one issue surfaced by Audit.
type Finding struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title"`
	Severity        string                 `json:"severity"`
	Details         map[string]interface{} `json:"details"`
	SuggestedAction ActionKind             `json:"suggested_action,omitempty"`
}

// AuditReport is Audit's result.
type AuditReport struct {
	RepoRoot   string    `json:"repo_root"`
	BacklogDir string    `json:"backlog_dir"`
	Layout     string    `json:"layout"`
	Findings   []Finding `json:"findings"`
}

// Audit scans a resolved backlog for deprecated layouts, legacy truth
// candidates, and config cleanup opportunities.
func Audit(root string) (AuditReport, error) {
	res, err := backlog.Resolve(root)
	if err != nil {
		return AuditReport{}, err
	}

	var findings []Finding
	if res.Layout.IsLegacy() {
		findings = append(findings, Finding{
			ID:       "legacy_layout",
			Title:    "Legacy backlog layout detected",
			Severity: "required",
			Details: map[string]interface{}{
				"layout": res.Layout.String(),
				"from":   res.BacklogDir,
				"target": filepath.Join(res.RepoRoot, "workmesh"),
			},
			SuggestedAction: ActionLayoutToWorkmesh,
		})
	}

	focus, err := loadLegacyFocus(res.BacklogDir)
	if err != nil {
		return AuditReport{}, err
	}
	if focus != nil {
		findings = append(findings, Finding{
			ID:       "legacy_focus",
			Title:    "Legacy focus.json detected",
			Severity: "required",
			Details:  map[string]interface{}{"path": filepath.Join(res.BacklogDir, FocusFileName)},
			SuggestedAction: ActionFocusToContext,
		})
	}

	if res.Config != nil && res.Config.DoNotMigrate {
		findings = append(findings, Finding{
			ID:       "deprecated_config_do_not_migrate",
			Title:    "Deprecated do_not_migrate=true config found",
			Severity: "recommended",
			Details:  map[string]interface{}{"config_root": res.RepoRoot},
			SuggestedAction: ActionConfigCleanup,
		})
	}

	if res.Config != nil && !config.ValidSchemaVersion(res.Config) {
		findings = append(findings, Finding{
			ID:       "config_schema_outdated",
			Title:    "Config schema_version is not a valid semantic version",
			Severity: "recommended",
			Details:  map[string]interface{}{"schema_version": res.Config.SchemaVersion},
		})
	}

	candidates, warnings, err := AuditLegacyTruthCandidates(res.BacklogDir)
	if err != nil {
		return AuditReport{}, err
	}
	if len(candidates) > 0 {
		findings = append(findings, Finding{
			ID:              "legacy_truth_candidates",
			Title:           "Legacy decision notes found for Truth Ledger backfill",
			Severity:        "recommended",
			Details:         map[string]interface{}{"candidate_count": len(candidates)},
			SuggestedAction: ActionTruthBackfill,
		})
	}
	_ = warnings

	missingHandoff, handoffWarnings, err := AuditSessionsMissingHandoff(res.RepoRoot)
	if err != nil {
		return AuditReport{}, err
	}
	if len(missingHandoff) > 0 {
		findings = append(findings, Finding{
			ID:              "sessions_missing_handoff",
			Title:           "Sessions missing structured handoff summary",
			Severity:        "recommended",
			Details:         map[string]interface{}{"session_count": len(missingHandoff)},
			SuggestedAction: ActionSessionHandoffEnrichment,
		})
	}
	_ = handoffWarnings

	return AuditReport{
		RepoRoot:   res.RepoRoot,
		BacklogDir: res.BacklogDir,
		Layout:     res.Layout.String(),
		Findings:   findings,
	}, nil
}

// PlanStep is one ordered remediation in a Plan.
type PlanStep struct {
	Action   ActionKind `json:"action"`
	Required bool       `json:"required"`
	Reason   string     `json:"reason"`
}

// Plan is Audit's findings turned into an ordered, deduplicated set of
// remediation steps.
type Plan struct {
	RepoRoot string     `json:"repo_root"`
	Steps    []PlanStep `json:"steps"`
	Warnings []string   `json:"warnings,omitempty"`
}

// PlanOptions filters which actions Plan includes.
type PlanOptions struct {
	Include []ActionKind
	Exclude []ActionKind
}

// PlanMigrations turns an audit report into an ordered remediation plan.
func PlanMigrations(report AuditReport, opts PlanOptions) Plan {
	wanted := make(map[ActionKind]bool)
	for _, f := range report.Findings {
		if f.SuggestedAction == "" {
			continue
		}
		wanted[f.SuggestedAction] = true
	}

	include := toSet(opts.Include)
	exclude := toSet(opts.Exclude)

	var steps []PlanStep
	var warnings []string
	for _, action := range actionOrder {
		if !wanted[action] {
			continue
		}
		if len(include) > 0 && !include[action] {
			continue
		}
		if exclude[action] {
			warnings = append(warnings, fmt.Sprintf("excluded action %s", action))
			continue
		}
		steps = append(steps, PlanStep{
			Action:   action,
			Required: action == ActionLayoutToWorkmesh,
			Reason:   actionReasons[action],
		})
	}

	return Plan{RepoRoot: report.RepoRoot, Steps: steps, Warnings: warnings}
}

func toSet(actions []ActionKind) map[ActionKind]bool {
	set := make(map[ActionKind]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

// ApplyOptions controls Apply's behavior.
type ApplyOptions struct {
	DryRun bool
}

// ApplyResult reports what Apply did.
type ApplyResult struct {
	Applied  []string `json:"applied"`
	Skipped  []string `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

// Apply executes a Plan's steps against root.
func Apply(root string, plan Plan, opts ApplyOptions) (ApplyResult, error) {
	result := ApplyResult{Warnings: append([]string(nil), plan.Warnings...)}

	for _, step := range plan.Steps {
		switch step.Action {
		case ActionLayoutToWorkmesh:
			if opts.DryRun {
				result.Applied = append(result.Applied, string(step.Action)+" (dry-run)")
				continue
			}
			res, err := backlog.Resolve(root)
			if err != nil {
				return ApplyResult{}, err
			}
			if res.Layout.IsLegacy() {
				if _, err := MigrateLayout(res, "workmesh"); err != nil {
					return ApplyResult{}, err
				}
			}
			result.Applied = append(result.Applied, string(step.Action))

		case ActionFocusToContext:
			if opts.DryRun {
				result.Applied = append(result.Applied, string(step.Action)+" (dry-run)")
				continue
			}
			res, err := backlog.Resolve(root)
			if err != nil {
				return ApplyResult{}, err
			}
			migrated, err := MigrateFocusToContext(res.RepoRoot, res.BacklogDir, true)
			if err != nil {
				return ApplyResult{}, err
			}
			if migrated {
				result.Applied = append(result.Applied, string(step.Action))
			} else {
				result.Skipped = append(result.Skipped, string(step.Action))
			}

		case ActionTruthBackfill:
			if opts.DryRun {
				result.Applied = append(result.Applied, string(step.Action)+" (dry-run)")
				continue
			}
			res, err := backlog.Resolve(root)
			if err != nil {
				return ApplyResult{}, err
			}
			candidates, _, err := AuditLegacyTruthCandidates(res.BacklogDir)
			if err != nil {
				return ApplyResult{}, err
			}
			migPlan, err := PlanTruthMigration(res.BacklogDir, candidates)
			if err != nil {
				return ApplyResult{}, err
			}
			migResult, err := ApplyTruthMigration(res.BacklogDir, migPlan, false)
			if err != nil {
				return ApplyResult{}, err
			}
			if len(migResult.CreatedIDs) == 0 {
				result.Warnings = append(result.Warnings, "truth_backfill: no legacy candidates to migrate")
			}
			result.Applied = append(result.Applied, string(step.Action))

		case ActionSessionHandoffEnrichment:
			if opts.DryRun {
				result.Applied = append(result.Applied, string(step.Action)+" (dry-run)")
				continue
			}
			res, err := backlog.Resolve(root)
			if err != nil {
				return ApplyResult{}, err
			}
			enriched, err := EnrichSessionHandoffs(res.RepoRoot)
			if err != nil {
				return ApplyResult{}, err
			}
			if enriched == 0 {
				result.Warnings = append(result.Warnings, "session_handoff_enrichment: no sessions required enrichment")
			}
			result.Applied = append(result.Applied, string(step.Action))

		case ActionConfigCleanup:
			if opts.DryRun {
				result.Applied = append(result.Applied, string(step.Action)+" (dry-run)")
				continue
			}
			res, err := backlog.Resolve(root)
			if err != nil {
				return ApplyResult{}, err
			}
			if res.Config != nil && res.Config.DoNotMigrate {
				res.Config.DoNotMigrate = false
				if err := config.Save(res.RepoRoot, res.Config); err != nil {
					return ApplyResult{}, err
				}
				result.Applied = append(result.Applied, string(step.Action))
			} else {
				result.Skipped = append(result.Skipped, string(step.Action))
			}

		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown action %s", step.Action))
			result.Skipped = append(result.Skipped, string(step.Action))
		}
	}
	return result, nil
}

var decisionLineRE = regexp.MustCompile(`(?i)^(?:[-*]\s*)?(?:decision|truth)\s*:\s*(.+)$`)

// LegacyCandidate is one decision-like line found in a task body or one
// entry of a session handoff's decisions, awaiting truth-ledger migration.
type LegacyCandidate struct {
	SourceType     string
	SourceID       string
	SourcePath     string
	Statement      string
	SuggestedTitle string
	Fingerprint    string
	Context        truth.Context
}

// AuditLegacyTruthCandidates scans task bodies for "Decision:"/"Truth:"
// lines that look like undocumented decisions, and global sessions for
// their handoff decisions.
func AuditLegacyTruthCandidates(backlogDir string) ([]LegacyCandidate, []string, error) {
	var candidates []LegacyCandidate
	var warnings []string

	for _, t := range task.LoadAll(backlogDir, false) {
		sourcePath := t.FilePath
		if sourcePath == "" {
			sourcePath = "(unknown task file)"
		}
		for _, line := range strings.Split(t.Body, "\n") {
			trimmed := strings.TrimSpace(line)
			m := decisionLineRE.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			statement := strings.TrimSpace(m[1])
			if statement == "" {
				continue
			}
			candidates = append(candidates, LegacyCandidate{
				SourceType:     "task_note",
				SourceID:       t.ID,
				SourcePath:     sourcePath,
				Statement:      statement,
				SuggestedTitle: suggestTitle(statement),
				Fingerprint:    legacyFingerprint("task_note", t.ID, statement),
				Context: truth.Context{
					EpicID:  t.ID,
					Feature: t.ID,
				},
			})
		}
	}

	home, err := session.ResolveHome()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("unable to resolve session home: %v", err))
	} else {
		sessions, err := session.LoadLatest(home)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("unable to scan global sessions: %v", err))
		} else {
			sourcePath := session.EventsPath(home)
			var owners []session.AgentSession
			var statements []string
			for _, s := range sessions {
				if s.Handoff != nil {
					for _, d := range s.Handoff.Decisions {
						owners = append(owners, s)
						statements = append(statements, d)
					}
				}
			}
			for i, s := range owners {
				statement := strings.TrimSpace(statements[i])
				if statement == "" {
					continue
				}
				candidates = append(candidates, LegacyCandidate{
					SourceType:     "session_handoff",
					SourceID:       s.ID,
					SourcePath:     sourcePath,
					Statement:      statement,
					SuggestedTitle: suggestTitle(statement),
					Fingerprint:    legacyFingerprint("session_handoff", s.ID, statement),
					Context: truth.Context{
						ProjectID: s.ProjectID,
						SessionID: s.ID,
					},
				})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SourceType != b.SourceType {
			return a.SourceType < b.SourceType
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.Statement < b.Statement
	})

	return candidates, warnings, nil
}

// PlanItem is one decision taken on a LegacyCandidate.
type PlanItem struct {
	Candidate LegacyCandidate
	Action    string
	Reason    string
}

// TruthMigrationPlan groups candidates into ones worth proposing and ones
// already migrated.
type TruthMigrationPlan struct {
	ToCreate []PlanItem
	Skipped  []PlanItem
	Warnings []string
}

// PlanTruthMigration classifies each candidate against truth records
// already tagged `legacy:<fingerprint>`.
func PlanTruthMigration(backlogDir string, candidates []LegacyCandidate) (TruthMigrationPlan, error) {
	existing, err := truth.List(backlogDir, truth.Query{})
	if err != nil {
		return TruthMigrationPlan{}, err
	}
	migrated := make(map[string]bool)
	for _, r := range existing {
		for _, tag := range r.Tags {
			if v, ok := strings.CutPrefix(tag, "legacy:"); ok {
				migrated[v] = true
			}
		}
	}

	plan := TruthMigrationPlan{}
	for _, c := range candidates {
		if migrated[c.Fingerprint] {
			plan.Skipped = append(plan.Skipped, PlanItem{Candidate: c, Action: "skip", Reason: "already migrated"})
			continue
		}
		plan.ToCreate = append(plan.ToCreate, PlanItem{Candidate: c, Action: "propose_truth", Reason: "legacy decision candidate"})
	}
	return plan, nil
}

// TruthMigrationResult reports what ApplyTruthMigration did.
type TruthMigrationResult struct {
	DryRun     bool
	CreatedIDs []string
	Skipped    []string
}

// ApplyTruthMigration proposes a truth record for every ToCreate item.
func ApplyTruthMigration(backlogDir string, plan TruthMigrationPlan, dryRun bool) (TruthMigrationResult, error) {
	if dryRun {
		var skipped []string
		for _, item := range plan.Skipped {
			skipped = append(skipped, fmt.Sprintf("%s:%s", item.Candidate.SourceType, item.Candidate.SourceID))
		}
		return TruthMigrationResult{DryRun: true, Skipped: skipped}, nil
	}

	var created []string
	for _, item := range plan.ToCreate {
		c := item.Candidate
		rec, err := truth.Propose(backlogDir, truth.ProposeInput{
			Title:     c.SuggestedTitle,
			Statement: c.Statement,
			Rationale: fmt.Sprintf("Migrated from %s:%s", c.SourceType, c.SourceID),
			Tags:      []string{"migrated", "legacy:" + c.Fingerprint, "source:" + c.SourceType},
			Context:   c.Context,
			Actor:     "truth-migration",
		})
		if err != nil {
			return TruthMigrationResult{}, err
		}
		created = append(created, rec.ID)
	}

	var skipped []string
	for _, item := range plan.Skipped {
		skipped = append(skipped, fmt.Sprintf("%s:%s (%s)", item.Candidate.SourceType, item.Candidate.SourceID, item.Reason))
	}
	return TruthMigrationResult{CreatedIDs: created, Skipped: skipped}, nil
}

func legacyFingerprint(sourceType, sourceID, statement string) string {
	sum := sha256.Sum256([]byte(sourceType + "|" + sourceID + "|" + statement))
	return hex.EncodeToString(sum[:])
}

func suggestTitle(statement string) string {
	collapsed := strings.Join(strings.Fields(statement), " ")
	if collapsed == "" {
		return "Migrated decision"
	}
	if len(collapsed) <= 72 {
		return collapsed
	}
	return collapsed[:69] + "..."
}

// FocusFileName is the legacy single-file scope record replaced by
// internal/scope's context.json.
const FocusFileName = "focus.json"

// LegacyFocus is the legacy focus.json shape: one project's current
// epic/task working set and objective, superseded by scope.State.
type LegacyFocus struct {
	ProjectID  string   `json:"project_id,omitempty"`
	EpicID     string   `json:"epic_id,omitempty"`
	Objective  string   `json:"objective,omitempty"`
	WorkingSet []string `json:"working_set,omitempty"`
}

func loadLegacyFocus(backlogDir string) (*LegacyFocus, error) {
	raw, err := os.ReadFile(filepath.Join(backlogDir, FocusFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("migration: read legacy focus.json: %w", err)
	}
	var focus LegacyFocus
	if err := json.Unmarshal(raw, &focus); err != nil {
		return nil, fmt.Errorf("migration: parse legacy focus.json: %w", err)
	}
	return &focus, nil
}

// MigrateFocusToContext converts a legacy focus.json into context.json
// (spec §4.K step 2): optionally backs it up under
// migrations/<timestamp>/focus.json.bak, writes a normalized context.json,
// then removes focus.json. Returns false if no focus.json was present.
func MigrateFocusToContext(repoRoot, backlogDir string, backup bool) (bool, error) {
	focus, err := loadLegacyFocus(backlogDir)
	if err != nil {
		return false, err
	}
	if focus == nil {
		return false, nil
	}

	focusPath := filepath.Join(backlogDir, FocusFileName)
	if backup {
		stamp := time.Now().Format("20060102150405")
		backupDir := filepath.Join(repoRoot, "migrations", stamp)
		if err := os.MkdirAll(backupDir, 0o750); err != nil {
			return false, fmt.Errorf("migration: create backup dir: %w", err)
		}
		raw, err := os.ReadFile(focusPath)
		if err != nil {
			return false, fmt.Errorf("migration: read focus.json for backup: %w", err)
		}
		if err := os.WriteFile(filepath.Join(backupDir, FocusFileName+".bak"), raw, 0o640); err != nil {
			return false, fmt.Errorf("migration: write focus.json backup: %w", err)
		}
	}

	state := &scope.State{
		ProjectID:  focus.ProjectID,
		Objective:  focus.Objective,
		WorkingSet: focus.WorkingSet,
	}
	if focus.EpicID != "" {
		state.Scope = scope.ScopeState{Mode: scope.ModeEpic, EpicID: focus.EpicID}
	}
	if err := scope.Save(backlogDir, state); err != nil {
		return false, fmt.Errorf("migration: write context.json: %w", err)
	}
	if err := os.Remove(focusPath); err != nil {
		return false, fmt.Errorf("migration: remove legacy focus.json: %w", err)
	}
	return true, nil
}

// AuditSessionsMissingHandoff returns global sessions relevant to repoRoot
// (or with no recorded repo root) that have no structured handoff summary.
func AuditSessionsMissingHandoff(repoRoot string) ([]session.AgentSession, []string, error) {
	home, err := session.ResolveHome()
	if err != nil {
		return nil, []string{fmt.Sprintf("unable to resolve session home: %v", err)}, nil
	}
	sessions, err := session.LoadLatest(home)
	if err != nil {
		return nil, []string{fmt.Sprintf("unable to scan global sessions: %v", err)}, nil
	}
	var missing []session.AgentSession
	for _, s := range sessions {
		if s.RepoRoot != "" && !strings.EqualFold(s.RepoRoot, repoRoot) {
			continue
		}
		if s.Handoff == nil || strings.TrimSpace(s.Handoff.Summary) == "" {
			missing = append(missing, s)
		}
	}
	return missing, nil, nil
}

// EnrichSessionHandoffs re-emits every session missing a structured
// handoff with a default summary, refreshing the current-session pointer
// when the enriched session is the current one.
func EnrichSessionHandoffs(repoRoot string) (int, error) {
	home, err := session.ResolveHome()
	if err != nil {
		return 0, err
	}
	missing, _, err := AuditSessionsMissingHandoff(repoRoot)
	if err != nil {
		return 0, err
	}
	current := session.ReadCurrent(home)
	for _, s := range missing {
		s.Handoff = &session.Handoff{Summary: defaultHandoffSummary(s)}
		if err := session.AppendSaved(home, s); err != nil {
			return 0, err
		}
		if s.ID == current {
			if err := session.SetCurrent(home, s.ID); err != nil {
				return 0, err
			}
		}
	}
	return len(missing), nil
}

func defaultHandoffSummary(s session.AgentSession) string {
	if notes := strings.TrimSpace(s.Notes); notes != "" {
		return suggestTitle(notes)
	}
	if strings.TrimSpace(s.Objective) != "" {
		return "Handoff for: " + strings.TrimSpace(s.Objective)
	}
	return "No summary recorded"
}
