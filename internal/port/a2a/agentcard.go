package a2a

import a2aproto "github.com/a2aproject/a2a-go/a2a"

// ProtocolVersion is the A2A protocol revision advertised on the card.
const ProtocolVersion = "0.3.0"

// BuildAgentCard returns the agent card published at
// /.well-known/agent.json. The skills mirror what remote agents can do
// against the relay: inspect tasks and sessions.
func BuildAgentCard(baseURL, version string) a2aproto.AgentCard {
	if version == "" {
		version = "0.1.0"
	}
	return a2aproto.AgentCard{
		Name:               "agentrelay",
		Description:        "Agent-to-agent task, message and session relay",
		URL:                baseURL,
		Version:            version,
		ProtocolVersion:    ProtocolVersion,
		DefaultInputModes:  []string{"application/json"},
		DefaultOutputModes: []string{"application/json"},
		Capabilities:       a2aproto.AgentCapabilities{Streaming: true},
		Skills: []a2aproto.AgentSkill{
			{
				ID:          "task-status",
				Name:        "Task Status",
				Description: "Report the protocol state of a relayed task",
				Tags:        []string{"tasks"},
				InputModes:  []string{"application/json"},
				OutputModes: []string{"application/json"},
			},
			{
				ID:          "session-tasks",
				Name:        "Session Tasks",
				Description: "List the tasks tracked by a session",
				Tags:        []string{"sessions", "tasks"},
				InputModes:  []string{"application/json"},
				OutputModes: []string{"application/json"},
			},
		},
	}
}
