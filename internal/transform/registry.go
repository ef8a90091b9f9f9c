package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/repository"
	"github.com/andresvega/loaderd/internal/transform/expr"
)

// denyList holds substrings rejected in submitted expressions before
// parsing. The expression language cannot express any of these anyway;
// the scan is defense in depth at the registration boundary, not a
// security boundary on its own.
var denyList = []string{
	"import", "exec", "eval", "__", "open(", "file(", "input(",
	"system", "subprocess", "os.", "sys.", "socket", "urllib",
	"getattr", "setattr", "delattr", "globals", "locals", "compile(",
}

// ValidateExpression rejects expressions containing deny-listed tokens
// and then checks that the expression parses. Called at registration
// time so invalid code never reaches execution.
func ValidateExpression(code string) error {
	lowered := strings.ToLower(code)
	for _, banned := range denyList {
		if strings.Contains(lowered, banned) {
			return fmt.Errorf("expression contains forbidden token %q", banned)
		}
	}
	if _, err := expr.Compile(code); err != nil {
		return fmt.Errorf("expression does not parse: %w", err)
	}
	return nil
}

// Registry resolves named custom transformations from the persistent
// store, caching compiled programs per name.
type Registry struct {
	repo *repository.TransformationRepository

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	prog   *expr.Program
	params map[string]any
}

// NewRegistry creates a Registry over the transformation repository.
func NewRegistry(repo *repository.TransformationRepository) *Registry {
	return &Registry{repo: repo, cache: make(map[string]cached)}
}

// Register validates and stores a custom transformation under name.
// Re-registering a name replaces the stored expression and invalidates
// the compiled cache entry.
func (r *Registry) Register(ctx context.Context, name, description, expression string, params map[string]any, createdBy string) error {
	if name == "" {
		return fmt.Errorf("transformation name is required")
	}
	if err := ValidateExpression(expression); err != nil {
		return err
	}

	encoded := ""
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding parameters: %w", err)
		}
		encoded = string(data)
	}

	t := &domain.CustomTransformation{
		Name:        name,
		Description: description,
		Expression:  expression,
		Parameters:  encoded,
		CreatedBy:   createdBy,
	}
	if err := r.repo.Upsert(ctx, t); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
	return nil
}

// Resolve returns the compiled program and default parameters for a
// registered transformation.
func (r *Registry) Resolve(ctx context.Context, name string) (*expr.Program, map[string]any, error) {
	r.mu.Lock()
	if c, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return c.prog, c.params, nil
	}
	r.mu.Unlock()

	t, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	prog, err := expr.Compile(t.Expression)
	if err != nil {
		return nil, nil, fmt.Errorf("stored transformation %q does not compile: %w", name, err)
	}
	var params map[string]any
	if t.Parameters != "" {
		if err := json.Unmarshal([]byte(t.Parameters), &params); err != nil {
			return nil, nil, fmt.Errorf("decoding parameters of %q: %w", name, err)
		}
	}

	r.mu.Lock()
	r.cache[name] = cached{prog: prog, params: params}
	r.mu.Unlock()
	return prog, params, nil
}

// List returns the registered transformations.
func (r *Registry) List(ctx context.Context) ([]domain.CustomTransformation, error) {
	return r.repo.List(ctx)
}
