// Package ham provides multi-step tool-calling agents over hosted
// language models, with typed structured prompting, lightweight graph
// pipelines, and a collection store for keyword and vector search.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/hsaeed3/ham/cmd/ham@latest
//
// Create a configuration:
//
//	llms:
//	  default:
//	    provider: openai
//	    model: gpt-4o-mini
//	    api_key: "${OPENAI_API_KEY}"
//
//	agents:
//	  assistant:
//	    instructions: "You are a helpful assistant."
//
// Chat with the agent:
//
//	ham chat --config config.yaml
//
// Or use the library directly:
//
//	provider, _ := llms.NewFromConfig(llmCfg)
//	ag := agent.New(provider, nil, agent.Settings{Instructions: "Help out."})
//	resp, _ := ag.Run(ctx, "hello")
//
// See the pkg/agent, pkg/prompted, pkg/graph, and pkg/database packages
// for the full API.
package ham
