// Package acp implements the Agent Client Protocol (ACP) subsystem of the
// orchestrator: a JSON-RPC 2.0 client speaking newline-delimited JSON over
// the stdio of an agent subprocess.
//
// The package is layered. The codec (jsonrpc.go) builds and classifies wire
// messages and does no I/O. The Client owns one subprocess: a single reader
// worker drains stdout, correlates responses to outstanding calls by id,
// and dispatches notifications and agent-initiated requests to registered
// handlers; all writers serialize stdin access behind one lock. Handlers
// answer the requests agents send back into the orchestrator: permission
// decisions, file reads and writes, and terminal (spawned process)
// lifecycle. The Adapter ties it together: it performs the
// initialize/session-new handshake, drives prompt turns through the
// Session, and normalizes every outcome into a ToolResponse for the
// orchestration loop.
//
// # Basic usage
//
//	adapter, err := acp.NewAdapter(acp.AdapterConfig{
//	    AgentCommand:   "gemini",
//	    AgentArgs:      []string{"--experimental-acp"},
//	    PermissionMode: acp.PermissionAllowlist,
//	    PermissionAllowlist: []string{"fs/*"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Stop()
//
//	resp := adapter.Execute(ctx, "Summarize the failing tests.")
//	fmt.Println(resp.Output)
//
// During shutdown a signal handler may call adapter.KillSubprocessSync,
// which only signals a stored pid and is safe where the ordinary Stop path
// is not.
package acp
