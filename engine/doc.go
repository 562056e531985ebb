// Package engine drives the agentic tool-calling loop that pairs a
// language model with local tools.
//
// A run starts from a single user query. Each turn the engine sends the
// conversation through the llm package, extracts text and tool calls from
// the provider's raw response, negotiates permission for side-effecting
// tools, executes approved calls concurrently, and feeds the results back
// into the conversation. The run ends when a turn produces no tool calls
// (completed), when the step limit or doom-loop detector halts it
// (errored), or when it is cancelled.
//
// The package is organized around these core concepts:
//
//   - Engine: The orchestrator holding the run loop, step accounting,
//     and cancellation.
//   - Requester: Host-side permission negotiation for tools whose policy
//     is ask.
//   - LoopDetector: Flags runs stuck repeating the same tool call.
//   - Emitter: Typed event stream for host application integration.
//
// # Quick Start
//
//	client := llm.NewClient(llm.WithAdapter(llm.NewAnthropicAdapter("", "")))
//	registry := tools.NewRegistry()
//	tools.RegisterBuiltins(registry, 10000, 600000)
//
//	eng := engine.New(client, engine.Config{
//	    Model:    "claude-sonnet-4-5",
//	    Registry: registry,
//	    Env:      tools.NewLocal("/path/to/project"),
//	})
//	defer eng.Close()
//
//	go func() {
//	    for event := range eng.Events() {
//	        fmt.Printf("[%s] %v\n", event.Kind, event.Data)
//	    }
//	}()
//
//	result, err := eng.Run(ctx, "Summarize the README")
package engine
