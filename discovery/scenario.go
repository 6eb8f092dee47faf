package discovery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/servicelab/svc-acceptor/client"
	"github.com/servicelab/svc-acceptor/engine"
)

// ScenarioSource compiles declarative YAML scenarios into runnable modules.
// The scenario root contains one directory per service; each file
// <root>/<service>/NN_name.yaml describes the module's HTTP steps. Scanning
// is a pure function of the directory contents at call time.
type ScenarioSource struct {
	root string
	log  log.Logger
}

// NewScenarioSource creates a source over the given scenario root directory.
func NewScenarioSource(root string, logger log.Logger) *ScenarioSource {
	if logger == nil {
		logger = log.New()
	}
	return &ScenarioSource{
		root: root,
		log:  logger.New("component", "scenarios"),
	}
}

// Modules implements ModuleSource. A missing service directory yields no
// candidates; a malformed scenario file is a DiscoveryError naming the file.
func (s *ScenarioSource) Modules(service string) ([]Candidate, error) {
	dir := filepath.Join(s.root, service)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &DiscoveryError{Service: service, Reason: fmt.Sprintf("reading scenario directory: %v", err)}
	}

	var candidates []Candidate
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		scen, err := loadScenario(path)
		if err != nil {
			return nil, &DiscoveryError{
				Service: service,
				Module:  entry.Name(),
				Reason:  err.Error(),
			}
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		candidates = append(candidates, Candidate{
			Name:  name,
			Entry: scen.entry(),
		})
	}

	// ReadDir sorts by filename already; keep it explicit since candidate
	// order feeds the duplicate check error messages.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	s.log.Debug("Loaded scenario modules", "service", service, "count", len(candidates))
	return candidates, nil
}

// scenario is the YAML schema of one declarative module.
type scenario struct {
	Description string         `yaml:"description,omitempty"`
	Steps       []scenarioStep `yaml:"steps"`
}

type scenarioStep struct {
	Name         string            `yaml:"name,omitempty"`
	Method       string            `yaml:"method"`
	Path         string            `yaml:"path"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Body         any               `yaml:"body,omitempty"`
	ExpectStatus int               `yaml:"expect_status,omitempty"`
	ExpectJSON   map[string]any    `yaml:"expect_json,omitempty"`
	Save         map[string]string `yaml:"save,omitempty"` // context key -> JSON field path
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var scen scenario
	if err := dec.Decode(&scen); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing scenario file: %v", err)
	}

	if len(scen.Steps) == 0 {
		return nil, fmt.Errorf("empty module: scenario declares no steps")
	}
	for i := range scen.Steps {
		step := &scen.Steps[i]
		switch strings.ToUpper(step.Method) {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			step.Method = strings.ToUpper(step.Method)
		case "":
			return nil, fmt.Errorf("step %d: method is required", i+1)
		default:
			return nil, fmt.Errorf("step %d: unsupported method %q", i+1, step.Method)
		}
		if step.Path == "" {
			return nil, fmt.Errorf("step %d: path is required", i+1)
		}
		if step.ExpectStatus == 0 {
			step.ExpectStatus = http.StatusOK
		}
	}
	return &scen, nil
}

// entry compiles the scenario into a module entry point that replays its
// steps through the run's execution context.
func (s *scenario) entry() engine.ModuleFunc {
	steps := s.Steps
	return func(ctx *engine.Context) error {
		for i, step := range steps {
			if err := runStep(ctx, i, step); err != nil {
				return err
			}
		}
		return nil
	}
}

func runStep(ctx *engine.Context, idx int, step scenarioStep) error {
	path := expand(step.Path, ctx)

	opts := make([]client.RequestOption, 0, len(step.Headers)+1)
	for k, v := range step.Headers {
		opts = append(opts, client.WithHeader(k, expand(v, ctx)))
	}
	if step.Body != nil {
		opts = append(opts, client.WithJSONBody(expandValue(step.Body, ctx)))
	}

	var resp *client.Response
	var err error
	switch step.Method {
	case http.MethodGet:
		resp, err = ctx.GET(path, opts...)
	case http.MethodPost:
		resp, err = ctx.POST(path, opts...)
	case http.MethodPut:
		resp, err = ctx.PUT(path, opts...)
	case http.MethodDelete:
		resp, err = ctx.DELETE(path, opts...)
	case http.MethodPatch:
		resp, err = ctx.PATCH(path, opts...)
	}
	if err != nil {
		return fmt.Errorf("step %d (%s %s): %w", idx+1, step.Method, path, err)
	}

	if err := resp.ExpectStatus(step.ExpectStatus); err != nil {
		return err
	}
	for field, want := range step.ExpectJSON {
		if err := resp.ExpectJSONField(field, expandValue(want, ctx)); err != nil {
			return err
		}
	}
	for key, fieldPath := range step.Save {
		v, err := resp.JSONField(fieldPath)
		if err != nil {
			return fmt.Errorf("step %d: saving %q: %w", idx+1, key, err)
		}
		ctx.Set(key, v)
	}
	return nil
}

// expand substitutes ${key} references with values from the execution
// context, enabling state handoff between scenario steps and modules.
func expand(s string, ctx *engine.Context) string {
	return os.Expand(s, func(key string) string {
		return ctx.GetString(key)
	})
}

func expandValue(v any, ctx *engine.Context) any {
	switch val := v.(type) {
	case string:
		return expand(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item, ctx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, ctx)
		}
		return out
	default:
		return v
	}
}
