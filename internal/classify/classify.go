// Package classify maps evidence files to a machine-readable failure mode.
package classify

import "strings"

// Mode identifies a failure mode.
type Mode string

const (
	OK                  Mode = "OK"
	EnvMissing          Mode = "ENV_MISSING"
	RootMissing         Mode = "ROOT_MISSING"
	PermissionDenied    Mode = "PERMISSION_DENIED"
	SpawnENOENT         Mode = "SPAWN_ENOENT"
	BinaryNotFound      Mode = "BINARY_NOT_FOUND"
	AtlasPipelineFailed Mode = "ATLAS_PIPELINE_FAILED"
	Unknown             Mode = "UNKNOWN"
	EvidenceMissing     Mode = "EVIDENCE_MISSING"
	AtlasEmpty          Mode = "ATLAS_EMPTY"
)

// Structural check names the classifier looks at.
const (
	CheckEnvPresence = "env_presence"
	CheckRootPath    = "root_path"
	CheckCwdAccess   = "cwd_access"
)

// Structural is the structural evidence document.
type Structural struct {
	RequiredFail bool             `json:"required_fail"`
	Checks       map[string]Check `json:"checks,omitempty"`
}

// Check is a single structural check outcome.
type Check struct {
	OK bool `json:"ok"`
}

// failed reports whether the named check is present and not ok.
func (s *Structural) failed(name string) bool {
	c, ok := s.Checks[name]
	return ok && !c.OK
}

// PipelineResult is the pipeline result evidence document.
type PipelineResult struct {
	Error string `json:"error,omitempty"`
}

// Inputs are the evidence documents to classify. Any of them may be nil.
type Inputs struct {
	Structural *Structural
	Execution  *Execution
	Result     *PipelineResult
}

// Classification is the classifier verdict.
type Classification struct {
	FailureMode    Mode     `json:"failure_mode"`
	Confidence     float64  `json:"confidence"`
	Signals        []string `json:"signals"`
	RecommendedFix string   `json:"recommended_fix"`
}

// Failed reports whether the verdict is anything but OK.
func (c *Classification) Failed() bool {
	return c.FailureMode != OK
}

// Classify applies the rules in order; the first rule that fires wins:
// structural failures, then a non-zero execution exit, then pipeline
// result errors.
func Classify(in Inputs) *Classification {
	if c := classifyStructural(in.Structural); c != nil {
		return c
	}
	if c := classifyExecution(in.Execution); c != nil {
		return c
	}
	if c := classifyResult(in.Result); c != nil {
		return c
	}
	return &Classification{
		FailureMode: OK,
		Confidence:  1,
		Signals:     []string{"all_checks_pass"},
	}
}

func verdict(mode Mode, confidence float64, fix string, signals ...string) *Classification {
	return &Classification{
		FailureMode:    mode,
		Confidence:     confidence,
		Signals:        signals,
		RecommendedFix: fix,
	}
}

func classifyStructural(s *Structural) *Classification {
	if s == nil || !s.RequiredFail {
		return nil
	}
	switch {
	case s.failed(CheckEnvPresence):
		return verdict(EnvMissing, 0.95, "Set required env keys from ACTF_REQUIRED_ENV_KEYS", "structural.env_presence.fail")
	case s.failed(CheckRootPath):
		return verdict(RootMissing, 0.95, "Set ACTF_ROOT_DIR to valid project root", "structural.root_path.fail")
	case s.failed(CheckCwdAccess):
		return verdict(PermissionDenied, 0.9, "Ensure cwd is readable", "structural.cwd_access.fail")
	default:
		return verdict(RootMissing, 0.8, "Fix structural checks (env, root, cwd)", "structural.required_fail")
	}
}

func classifyExecution(r *Execution) *Classification {
	if r == nil || !r.Exited() {
		return nil
	}
	stderr := strings.ToLower(r.Stderr)
	cmd := strings.ToLower(r.Cmd)

	switch {
	case strings.Contains(stderr, "enoent") || strings.Contains(stderr, "command not found"):
		if strings.Contains(stderr, "spawn") || strings.Contains(cmd, "spawn") {
			return verdict(SpawnENOENT, 0.9, "Binary not found in PATH; use absolute path or set PATH",
				"execution.stderr.enoent", "execution.stderr.spawn")
		}
		return verdict(BinaryNotFound, 0.85, "Binary not found; check PATH or use absolute path",
			"execution.stderr.enoent_or_not_found")
	case strings.Contains(stderr, "atlas") && strings.Contains(stderr, "exit"):
		return verdict(AtlasPipelineFailed, 0.85, "atlas:run failed; check stderr", "execution.atlas_exit_nonzero")
	case strings.Contains(stderr, "eacces"):
		return verdict(PermissionDenied, 0.9, "Permission denied; check file permissions", "execution.stderr.eacces")
	default:
		return verdict(Unknown, 0.5, "Check stderr for details", "execution.exit_nonzero")
	}
}

func classifyResult(r *PipelineResult) *Classification {
	if r == nil {
		return nil
	}
	switch Mode(r.Error) {
	case EvidenceMissing:
		return verdict(EvidenceMissing, 0.9, "result.json not found; run atlas:run first", "atlas_result.missing")
	case AtlasEmpty:
		return verdict(AtlasEmpty, 0.9, "items_count and categories_count both 0", "atlas_result.empty")
	}
	return nil
}
