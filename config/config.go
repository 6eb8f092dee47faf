package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/servicelab/svc-acceptor/types"
)

const defaultServiceTimeout = 30 * time.Second

// servicesFile is the YAML schema of the services configuration file.
type servicesFile struct {
	Services []types.ServiceDescriptor `yaml:"services"`
}

// LoadServices reads and validates the services configuration file. Unknown
// keys are rejected so a typo in a policy field fails loudly instead of
// silently running with defaults.
func LoadServices(path string) ([]types.ServiceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading services config %q", path)
	}
	return ParseServices(data)
}

// ParseServices parses and validates a services configuration document.
func ParseServices(data []byte) ([]types.ServiceDescriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file servicesFile
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parsing services config")
	}
	if len(file.Services) == 0 {
		return nil, errors.New("services config declares no services")
	}

	seen := make(map[string]bool, len(file.Services))
	for i := range file.Services {
		svc := &file.Services[i]
		applyDefaults(svc)
		if err := svc.Validate(); err != nil {
			return nil, errors.Wrapf(err, "service %d (%q)", i+1, svc.Name)
		}
		if seen[svc.Name] {
			return nil, errors.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = true
	}
	return file.Services, nil
}

func applyDefaults(svc *types.ServiceDescriptor) {
	if svc.Timeout <= 0 {
		svc.Timeout = defaultServiceTimeout
	}
	svc.Retry = svc.Retry.WithDefaults()
}
