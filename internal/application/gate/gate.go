// Package gate guards tool invocations whose names are in a fixed unsafe
// set. Such tools run only after an external confirmation; a refusal yields
// domain.ErrRefused and the tool is never executed.
package gate

import (
	"context"
	"fmt"
	"sort"

	"github.com/aescanero/dagent/pkg/domain"
	"go.uber.org/zap"
)

// DefaultUnsafeTools are the tools that need confirmation by default.
var DefaultUnsafeTools = []string{
	"delete_file",
	"execute_command",
	"git_push",
	"shell",
	"write_file",
}

// Confirmer asks an external party whether tool may run with args.
type Confirmer func(ctx context.Context, tool string, args map[string]any) (bool, error)

// Tool is an executable tool.
type Tool func(ctx context.Context, args map[string]any) (any, error)

// Gate holds the unsafe set and the confirmation callback.
type Gate struct {
	unsafe  map[string]struct{}
	confirm Confirmer
	logger  *zap.Logger
}

// New creates a new gate. A nil confirm refuses every unsafe tool.
func New(unsafe []string, confirm Confirmer, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]struct{}, len(unsafe))
	for _, name := range unsafe {
		set[name] = struct{}{}
	}
	return &Gate{unsafe: set, confirm: confirm, logger: logger}
}

// IsUnsafe reports whether name needs confirmation.
func (g *Gate) IsUnsafe(name string) bool {
	_, ok := g.unsafe[name]
	return ok
}

// Unsafe returns the unsafe set, sorted.
func (g *Gate) Unsafe() []string {
	names := make([]string, 0, len(g.unsafe))
	for name := range g.unsafe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs tool, asking for confirmation first when name is unsafe.
// A failing confirmer is reported as its own error, not as a refusal.
func (g *Gate) Execute(ctx context.Context, name string, args map[string]any, tool Tool) (any, error) {
	if g.IsUnsafe(name) {
		approved := false
		if g.confirm != nil {
			var err error
			approved, err = g.confirm(ctx, name, args)
			if err != nil {
				return nil, fmt.Errorf("failed to confirm %s: %w", name, err)
			}
		}
		if !approved {
			g.logger.Warn("unsafe tool refused", zap.String("tool", name))
			return nil, fmt.Errorf("%s: %w", name, domain.ErrRefused)
		}
		g.logger.Info("unsafe tool confirmed", zap.String("tool", name))
	}

	return tool(ctx, args)
}
