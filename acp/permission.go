package acp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// PermissionMode selects how session/request_permission callbacks are
// decided.
type PermissionMode string

const (
	// PermissionAutoApprove approves every request.
	PermissionAutoApprove PermissionMode = "auto_approve"

	// PermissionDenyAll denies every request.
	PermissionDenyAll PermissionMode = "deny_all"

	// PermissionAllowlist approves requests whose operation matches at
	// least one configured pattern.
	PermissionAllowlist PermissionMode = "allowlist"

	// PermissionInteractive prompts on the controlling terminal; without
	// one it denies (fails closed, never blocks indefinitely).
	PermissionInteractive PermissionMode = "interactive"
)

func validPermissionMode(mode PermissionMode) bool {
	switch mode {
	case PermissionAutoApprove, PermissionDenyAll, PermissionAllowlist, PermissionInteractive:
		return true
	}
	return false
}

// PermissionRequest is the decoded shape of a session/request_permission
// callback, with the raw argument map retained.
type PermissionRequest struct {
	Arguments map[string]interface{}
	Operation string
	Path      string
	Command   string
	Options   []PermissionOption
}

func permissionRequestFromParams(params json.RawMessage) PermissionRequest {
	var fields struct {
		Operation string             `json:"operation"`
		Path      string             `json:"path"`
		Command   string             `json:"command"`
		Options   []PermissionOption `json:"options"`
	}
	_ = json.Unmarshal(params, &fields)

	var raw map[string]interface{}
	_ = json.Unmarshal(params, &raw)

	return PermissionRequest{
		Operation: fields.Operation,
		Path:      fields.Path,
		Command:   fields.Command,
		Options:   fields.Options,
		Arguments: raw,
	}
}

// PermissionDecision records one decision: whether the operation was
// approved, a human-readable reason, and the mode that produced it.
type PermissionDecision struct {
	Time     time.Time
	Reason   string
	Mode     PermissionMode
	Approved bool
}

// PermissionRecord pairs a request with its decision in the history.
type PermissionRecord struct {
	Request  PermissionRequest
	Decision PermissionDecision
}

// maxPermissionHistory caps the decision history; the oldest entries are
// dropped first.
const maxPermissionHistory = 1000

// decidePermission evaluates the request under the configured mode.
func (h *Handlers) decidePermission(req PermissionRequest) PermissionDecision {
	d := PermissionDecision{Time: time.Now(), Mode: h.mode}

	switch h.mode {
	case PermissionAutoApprove:
		d.Approved = true
		d.Reason = "auto_approve mode approves all operations"

	case PermissionDenyAll:
		d.Reason = "deny_all mode denies all operations"

	case PermissionAllowlist:
		if matchesAllowlist(req.Operation, h.allowlist) {
			d.Approved = true
			d.Reason = fmt.Sprintf("operation %q matched allowlist", req.Operation)
		} else {
			d.Reason = fmt.Sprintf("operation %q not in allowlist", req.Operation)
		}

	case PermissionInteractive:
		d.Approved, d.Reason = h.promptInteractive(req)
	}

	return d
}

// matchesAllowlist reports whether the operation matches any pattern.
// Patterns support exact match, glob (* and ?), and /regex/-delimited
// regular expressions. An invalid pattern never matches.
func matchesAllowlist(operation string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesPattern(operation, pattern) {
			return true
		}
	}
	return false
}

func matchesPattern(operation, pattern string) bool {
	if len(pattern) > 1 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			// Fail closed: an invalid regex never matches.
			return false
		}
		return re.MatchString(operation)
	}

	// path.Match covers exact strings and glob metacharacters; a bad
	// pattern fails closed.
	ok, err := path.Match(pattern, operation)
	return err == nil && ok
}

// promptInteractive blocks on a y/N prompt when attached to a terminal.
// Everything other than an explicit yes, including EOF or a read error,
// denies.
func (h *Handlers) promptInteractive(req PermissionRequest) (bool, string) {
	if !h.isTerminal() {
		return false, "interactive mode requires a terminal; denied by default"
	}

	fmt.Fprintf(h.promptOut, "Agent requests permission for %q", req.Operation)
	if req.Path != "" {
		fmt.Fprintf(h.promptOut, " (path: %s)", req.Path)
	}
	if req.Command != "" {
		fmt.Fprintf(h.promptOut, " (command: %s)", req.Command)
	}
	fmt.Fprint(h.promptOut, ". Allow? [y/N] ")

	// One persistent reader: a fresh one per prompt would drop any bytes
	// the previous read buffered past its line.
	if h.promptReader == nil {
		h.promptReader = bufio.NewReader(h.promptIn)
	}
	line, err := h.promptReader.ReadString('\n')
	if err != nil && line == "" {
		return false, "no answer (end of input); denied"
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, "approved interactively"
	default:
		return false, "denied interactively"
	}
}

// recordDecision appends to the capped history and fires the optional
// logging callback.
func (h *Handlers) recordDecision(req PermissionRequest, d PermissionDecision) {
	h.histMu.Lock()
	h.history = append(h.history, PermissionRecord{Request: req, Decision: d})
	if len(h.history) > maxPermissionHistory {
		h.history = h.history[len(h.history)-maxPermissionHistory:]
	}
	logFn := h.onPermissionLog
	h.histMu.Unlock()

	if logFn != nil {
		verdict := "DENIED"
		if d.Approved {
			verdict = "APPROVED"
		}
		logFn(fmt.Sprintf("%s: %s (%s)", verdict, req.Operation, d.Reason))
	}
}

// handleRequestPermission decides the request and echoes the agent's own
// option ids: approval selects the first allow-typed option (falling back
// to the first option), denial is a cancelled outcome.
func (h *Handlers) handleRequestPermission(params json.RawMessage) (interface{}, error) {
	req := permissionRequestFromParams(params)
	decision := h.decidePermission(req)
	h.recordDecision(req, decision)

	if !decision.Approved {
		return cancelledOutcome(), nil
	}

	for _, opt := range req.Options {
		if strings.HasPrefix(opt.Type, "allow") {
			return selectedOutcome(opt.ID), nil
		}
	}
	if len(req.Options) > 0 {
		return selectedOutcome(req.Options[0].ID), nil
	}

	// Approved but no option to echo; nothing to select.
	return cancelledOutcome(), nil
}

// History returns a copy of the decision history.
func (h *Handlers) History() []PermissionRecord {
	h.histMu.Lock()
	defer h.histMu.Unlock()
	out := make([]PermissionRecord, len(h.history))
	copy(out, h.history)
	return out
}

// ClearHistory discards the decision history.
func (h *Handlers) ClearHistory() {
	h.histMu.Lock()
	defer h.histMu.Unlock()
	h.history = nil
}

// ApprovedCount returns how many recorded decisions approved.
func (h *Handlers) ApprovedCount() int {
	h.histMu.Lock()
	defer h.histMu.Unlock()
	n := 0
	for _, rec := range h.history {
		if rec.Decision.Approved {
			n++
		}
	}
	return n
}

// DeniedCount returns how many recorded decisions denied.
func (h *Handlers) DeniedCount() int {
	h.histMu.Lock()
	defer h.histMu.Unlock()
	n := 0
	for _, rec := range h.history {
		if !rec.Decision.Approved {
			n++
		}
	}
	return n
}
