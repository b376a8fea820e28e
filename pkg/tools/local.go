package tools

import (
	"context"
	"sync"
)

// LocalToolSource serves tools registered in process.
type LocalToolSource struct {
	name string

	mu    sync.RWMutex
	tools map[string]Tool
}

// NewLocalToolSource creates an empty local source.
func NewLocalToolSource(name string) *LocalToolSource {
	if name == "" {
		name = "local"
	}
	return &LocalToolSource{
		name:  name,
		tools: make(map[string]Tool),
	}
}

func (s *LocalToolSource) Name() string { return s.name }
func (s *LocalToolSource) Type() string { return "local" }

// AddTool registers a tool with the source.
func (s *LocalToolSource) AddTool(tool Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name()] = tool
}

// DiscoverTools is a no-op; local tools are registered directly.
func (s *LocalToolSource) DiscoverTools(ctx context.Context) error {
	return nil
}

func (s *LocalToolSource) ListTools() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(s.tools))
	for _, tool := range s.tools {
		infos = append(infos, tool.Info())
	}
	return infos
}

func (s *LocalToolSource) GetTool(name string) (Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tool, exists := s.tools[name]
	return tool, exists
}

// Close is a no-op for in-process tools.
func (s *LocalToolSource) Close() error { return nil }

var _ ToolSource = (*LocalToolSource)(nil)
