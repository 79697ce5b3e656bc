package execution

import (
	"context"
	"fmt"
	"log/slog"

	"nodeflow/internal/agent"
	"nodeflow/internal/llm"
	"nodeflow/internal/models"
	"nodeflow/internal/sandbox"
	"nodeflow/internal/services"
)

// Runner launches and drives executions. Each execution gets its own
// state manager and capability namespace; the runner itself is shared
// and safe for concurrent executions.
type Runner struct {
	executions    *services.ExecutionService
	workflows     *services.WorkflowService
	nodeTypes     *services.NodeTypeService
	credentials   *services.CredentialService
	runtime       *sandbox.Runtime
	agents        *agent.Loop
	llm           *llm.Factory
	conversations *agent.ConversationStore
	defaultModel  models.ModelConfig
}

func NewRunner(
	executions *services.ExecutionService,
	workflows *services.WorkflowService,
	nodeTypes *services.NodeTypeService,
	credentials *services.CredentialService,
	runtime *sandbox.Runtime,
	agents *agent.Loop,
	llmFactory *llm.Factory,
	conversations *agent.ConversationStore,
) *Runner {
	return &Runner{
		executions:    executions,
		workflows:     workflows,
		nodeTypes:     nodeTypes,
		credentials:   credentials,
		runtime:       runtime,
		agents:        agents,
		llm:           llmFactory,
		conversations: conversations,
		defaultModel:  models.ModelConfig{Provider: "openai", Model: "gpt-4o-mini"},
	}
}

// Launch creates an execution record for a workflow and runs it
func (r *Runner) Launch(ctx context.Context, workflowID string) (*models.Execution, error) {
	exec, err := r.executions.Create(workflowID)
	if err != nil {
		return nil, err
	}
	if err := r.Execute(ctx, exec.ID); err != nil {
		return exec, err
	}
	return r.executions.Get(exec.ID)
}

// LaunchInBackground runs a workflow on its own goroutine. Used by the
// cron scheduler and the async trigger endpoint.
func (r *Runner) LaunchInBackground(workflowID string) {
	go func() {
		if _, err := r.Launch(context.Background(), workflowID); err != nil {
			slog.Default().Error("scheduled execution failed", "workflow_id", workflowID, "error", err)
		}
	}()
}

// Execute runs an existing execution to a terminal state. It never
// leaves the record non-terminal: panics and infrastructure errors both
// end as failed with a summary.
func (r *Runner) Execute(ctx context.Context, executionID string) (err error) {
	exec, err := r.executions.Get(executionID)
	if err != nil {
		return fmt.Errorf("load execution: %w", err)
	}

	state := NewStateManager(r.executions, exec)

	defer func() {
		if rec := recover(); rec != nil {
			state.Log(fmt.Sprintf("Execution panicked: %v", rec), "", "critical")
			if finErr := r.executions.Finalize(executionID, models.StatusFailed, fmt.Sprintf("Internal error: %v", rec)); finErr != nil {
				slog.Default().Error("failed to finalize panicked execution", "execution_id", executionID, "error", finErr)
			}
			err = fmt.Errorf("execution panicked: %v", rec)
		}
		r.conversations.Drop(agent.SessionKey(executionID))
	}()

	workflow, err := r.workflows.Get(exec.WorkflowID)
	if err != nil {
		state.Log(fmt.Sprintf("Failed to load workflow: %v", err), "", "critical")
		_ = r.executions.Finalize(executionID, models.StatusFailed, "Workflow definition could not be loaded")
		return fmt.Errorf("load workflow: %w", err)
	}

	if err := state.Start(); err != nil {
		_ = r.executions.Finalize(executionID, models.StatusFailed, "Execution could not be started")
		return fmt.Errorf("start execution: %w", err)
	}

	caps := &Capabilities{
		State:        state,
		Agent:        r.agents,
		LLM:          r.llm,
		Credentials:  r.credentials,
		DefaultModel: r.defaultModel,
	}

	scheduler := NewScheduler(workflow.Graph, state, r.nodeInvoker(caps))
	allSucceeded := scheduler.Run(ctx)

	if err := state.Finish(allSucceeded); err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return nil
}

// nodeInvoker compiles and runs one node's script. The start node is a
// pure control marker and short-circuits to an empty output when no
// script is registered for it.
func (r *Runner) nodeInvoker(caps *Capabilities) NodeInvoker {
	return func(ctx context.Context, node models.GraphNode, inputs, handleInputs map[string]any) (map[string]any, error) {
		definition, err := r.nodeTypes.GetByName(node.NodeType)
		if err != nil {
			if node.NodeType == models.StartNodeType {
				return map[string]any{}, nil
			}
			return nil, fmt.Errorf("unknown node type %q: %w", node.NodeType, err)
		}
		if definition.Script == "" {
			return map[string]any{}, nil
		}

		compiled, err := r.runtime.Compile(node.ID, definition.Script)
		if err != nil {
			return nil, err
		}

		return compiled.Invoke(ctx, sandbox.Invocation{
			Inputs:       inputs,
			Params:       node.Params,
			HandleInputs: handleInputs,
			Libs:         caps.libsFor(ctx, node.ID),
			Print: func(msg string) {
				caps.State.Log(msg, node.ID, "info")
			},
		})
	}
}
