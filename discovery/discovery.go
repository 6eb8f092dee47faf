package discovery

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/servicelab/svc-acceptor/engine"
	"github.com/servicelab/svc-acceptor/types"
)

// DiscoveryError marks a malformed module set for one service. It is fatal
// for that service only: the service is reported unavailable with zero
// results while other services proceed.
type DiscoveryError struct {
	Service string
	Module  string
	Reason  string
}

func (e *DiscoveryError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("discovery failed for service %s: %s", e.Service, e.Reason)
	}
	return fmt.Sprintf("discovery failed for module %s/%s: %s", e.Service, e.Module, e.Reason)
}

// IsDiscoveryError checks if the error is or wraps a DiscoveryError.
func IsDiscoveryError(err error) bool {
	var discErr *DiscoveryError
	return err != nil && errors.As(err, &discErr)
}

// Candidate is a raw module yielded by a source before validation.
type Candidate struct {
	Name  string // full name including ordinal prefix, e.g. "01_create_user"
	Entry engine.ModuleFunc
}

// ModuleSource yields candidate modules for a service. Sources report their
// own structural problems (unreadable files, bad scenario syntax) as
// DiscoveryErrors; naming and entry-point validation is the discoverer's job.
type ModuleSource interface {
	Modules(service string) ([]Candidate, error)
}

// Module couples a validated descriptor with its entry point.
type Module struct {
	Meta  types.ModuleDescriptor
	Entry engine.ModuleFunc
}

// ordinal prefix: leading digits, then '_' or '-', then a non-empty name
var moduleNameRe = regexp.MustCompile(`^(\d+)[_-](.+)$`)

// ParseOrdinal extracts the numeric ordinal prefix from a module name.
func ParseOrdinal(name string) (int, error) {
	m := moduleNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("name %q lacks a numeric ordinal prefix (expected NN_name)", name)
	}
	ordinal, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("name %q has an unparsable ordinal prefix: %v", name, err)
	}
	return ordinal, nil
}

// Discoverer produces the deterministically ordered module sequence for a
// service from one or more sources. Discovery is idempotent and
// side-effect-free: repeated calls are a pure function of the sources'
// contents at call time.
type Discoverer struct {
	sources []ModuleSource
	log     log.Logger
}

// NewDiscoverer creates a discoverer over the given sources.
func NewDiscoverer(logger log.Logger, sources ...ModuleSource) *Discoverer {
	if logger == nil {
		logger = log.New()
	}
	return &Discoverer{
		sources: sources,
		log:     logger.New("component", "discovery"),
	}
}

// Discover returns the service's modules ordered by (ordinal, name). Every
// candidate must carry a parsable ordinal prefix and a non-nil entry point;
// a violation is rejected with a DiscoveryError naming the offending module.
// A service with zero valid modules yields an empty sequence, not an error,
// so the service is reported with zero results rather than blocking the run.
func (d *Discoverer) Discover(service string) ([]Module, error) {
	var modules []Module
	seen := make(map[string]bool)

	for _, src := range d.sources {
		candidates, err := src.Modules(service)
		if err != nil {
			if IsDiscoveryError(err) {
				return nil, err
			}
			return nil, &DiscoveryError{Service: service, Reason: err.Error()}
		}
		for _, cand := range candidates {
			ordinal, err := ParseOrdinal(cand.Name)
			if err != nil {
				return nil, &DiscoveryError{Service: service, Module: cand.Name, Reason: err.Error()}
			}
			if cand.Entry == nil {
				return nil, &DiscoveryError{Service: service, Module: cand.Name, Reason: "module has no entry point"}
			}
			if seen[cand.Name] {
				return nil, &DiscoveryError{Service: service, Module: cand.Name, Reason: "duplicate module name"}
			}
			seen[cand.Name] = true
			modules = append(modules, Module{
				Meta: types.ModuleDescriptor{
					Service: service,
					Ordinal: ordinal,
					Name:    cand.Name,
				},
				Entry: cand.Entry,
			})
		}
	}

	sort.SliceStable(modules, func(i, j int) bool {
		return modules[i].Meta.Less(modules[j].Meta)
	})

	d.log.Debug("Discovered modules", "service", service, "count", len(modules))
	return modules, nil
}
