// Package mcp defines domain types for the external Model Context Protocol
// tool servers agentrelay supervises: server definitions, lifecycle status
// and the typed results of the search and vector tools they expose.
package mcp

import (
	"fmt"
	"os"
	"regexp"

	"github.com/Strob0t/agentrelay/internal/domain"
)

// Built-in server names.
const (
	ServerBraveSearch = "braveSearch"
	ServerPinecone    = "pinecone"
)

var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ServerDef describes how to launch one stdio tool server. An empty Command
// means the package launcher (npx) resolved for the current platform.
type ServerDef struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Command     string            `json:"command,omitempty" yaml:"command"`
	Args        []string          `json:"args,omitempty" yaml:"args"`
	RequiredEnv []string          `json:"required_env,omitempty" yaml:"required_env"`
	Env         map[string]string `json:"env,omitempty" yaml:"env"`
}

// Validate checks that the ServerDef has a usable name and arguments.
func (s *ServerDef) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if !validName.MatchString(s.Name) {
		return fmt.Errorf("%w: invalid server name %q", domain.ErrValidation, s.Name)
	}
	if s.Command == "" && len(s.Args) == 0 {
		return fmt.Errorf("%w: server %s needs a command or launcher args", domain.ErrValidation, s.Name)
	}
	for _, key := range s.RequiredEnv {
		if key == "" {
			return fmt.Errorf("%w: server %s lists an empty required_env entry", domain.ErrValidation, s.Name)
		}
	}
	return nil
}

// MissingEnv returns the first required variable absent from both the
// definition's Env and the process environment.
func (s *ServerDef) MissingEnv() (string, bool) {
	for _, key := range s.RequiredEnv {
		if v := s.Env[key]; v != "" {
			continue
		}
		if os.Getenv(key) == "" {
			return key, true
		}
	}
	return "", false
}

// Environ returns the child environment: the parent environment plus the
// definition's explicit entries.
func (s *ServerDef) Environ() []string {
	env := os.Environ()
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// BuiltinServers returns the default web search and vector database servers
// in their fixed initialization order.
func BuiltinServers() []ServerDef {
	return []ServerDef{
		{
			Name:        ServerBraveSearch,
			Description: "Brave web and local search",
			Args:        []string{"-y", "@modelcontextprotocol/server-brave-search"},
			RequiredEnv: []string{"BRAVE_API_KEY"},
		},
		{
			Name:        ServerPinecone,
			Description: "Pinecone vector index",
			Args:        []string{"-y", "@pinecone-database/mcp"},
			RequiredEnv: []string{"PINECONE_API_KEY"},
		},
	}
}

// ServerStatus is the externally visible state of one tool server.
type ServerStatus struct {
	Ready            bool `json:"ready"`
	HasProcess       bool `json:"has_process"`
	QueuedMessages   int  `json:"queued_messages"`
	PendingResponses int  `json:"pending_responses"`
}

// Status is the orchestrator-wide snapshot returned by Status().
type Status struct {
	Initialized bool                    `json:"initialized"`
	Servers     map[string]ServerStatus `json:"servers"`
}
