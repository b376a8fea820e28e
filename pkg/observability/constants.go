package observability

const (
	AttrAgentName       = "agent.name"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensOutput = "llm.tokens.output"

	SpanAgentRun      = "agent.run"
	SpanAgentStep     = "agent.step"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanContextUpdate = "agent.context_update"

	DefaultServiceName = "ham"
)
