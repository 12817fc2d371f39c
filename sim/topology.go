package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReplicaName returns the identity of replica i of service, e.g. "web_0".
func ReplicaName(service string, i int) string {
	return fmt.Sprintf("%s_%d", service, i)
}

// ReplicaLabel returns the value replica i of service answers with:
// "some-web" for the primary, "replica: some-web" for the first replica,
// "replica2: some-web" and so on after that.
func ReplicaLabel(service string, i int) string {
	switch i {
	case 0:
		return "some-" + service
	case 1:
		return "replica: some-" + service
	}
	return fmt.Sprintf("replica%d: some-%s", i, service)
}

// BuildServices creates the default topology for cfg: cfg.Replicas uniform
// latency backends per service, each with its own seeded RNG.
func BuildServices(cfg Config) []Service {
	rng := NewPartitionedRNG(NewRunKey(cfg.Seed))
	services := make([]Service, 0, len(cfg.Services))
	for _, name := range cfg.Services {
		replicas := make([]Caller, 0, cfg.Replicas)
		for i := 0; i < cfg.Replicas; i++ {
			replicas = append(replicas, NewBackend(BackendSpec{
				Name:        ReplicaName(name, i),
				Label:       ReplicaLabel(name, i),
				Latency:     cfg.Latency,
				FailureRate: cfg.FailureRate,
			}, rng.ForSubsystem(SubsystemBackend(name, i)), cfg.TimeUnit))
		}
		services = append(services, Service{Name: name, Replicas: replicas})
	}
	return services
}

// Topology is a service layout loadable from a YAML file. Nil pointer fields
// mean "not set in YAML" and fall back to the run Config.
type Topology struct {
	Services []ServiceSpec `yaml:"services"`
}

// ServiceSpec describes one logical service.
type ServiceSpec struct {
	Name     string        `yaml:"name"`
	Replicas []ReplicaSpec `yaml:"replicas"`
}

// ReplicaSpec describes one replica. Latency pins a fixed service time and
// takes precedence over LatencyMin/LatencyMax.
type ReplicaSpec struct {
	Label       string   `yaml:"label"`
	Latency     *int64   `yaml:"latency"`
	LatencyMin  *int64   `yaml:"latency_min"`
	LatencyMax  *int64   `yaml:"latency_max"`
	FailureRate *float64 `yaml:"failure_rate"`
}

// LoadTopology reads and parses a YAML topology file.
// Uses strict field checking: typos must cause errors.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}
	var t Topology
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&t); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return &t, nil
}

// Validate checks names, replica counts and parameter ranges.
func (t *Topology) Validate() error {
	if len(t.Services) == 0 {
		return ErrNoServices
	}
	seen := make(map[string]bool, len(t.Services))
	for _, svc := range t.Services {
		if svc.Name == "" {
			return fmt.Errorf("service name must not be empty")
		}
		if seen[svc.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateService, svc.Name)
		}
		seen[svc.Name] = true
		if len(svc.Replicas) == 0 {
			return fmt.Errorf("service %q: %w", svc.Name, ErrNoReplicas)
		}
		for i, r := range svc.Replicas {
			if r.Latency != nil && *r.Latency < 0 {
				return fmt.Errorf("service %q replica %d: latency must be non-negative, got %d", svc.Name, i, *r.Latency)
			}
			if r.LatencyMin != nil && r.LatencyMax != nil && *r.LatencyMax < *r.LatencyMin {
				return fmt.Errorf("service %q replica %d: latency_max %d is below latency_min %d", svc.Name, i, *r.LatencyMax, *r.LatencyMin)
			}
			if r.LatencyMin != nil && *r.LatencyMin < 0 {
				return fmt.Errorf("service %q replica %d: latency_min must be non-negative, got %d", svc.Name, i, *r.LatencyMin)
			}
			if r.FailureRate != nil && (*r.FailureRate < 0 || *r.FailureRate > 1) {
				return fmt.Errorf("service %q replica %d: failure_rate must be in [0, 1], got %f", svc.Name, i, *r.FailureRate)
			}
		}
	}
	return nil
}

// ServiceNames returns the service names in file order.
func (t *Topology) ServiceNames() []string {
	names := make([]string, len(t.Services))
	for i, svc := range t.Services {
		names[i] = svc.Name
	}
	return names
}

// Build creates backends for every replica in the topology. Unset fields
// fall back to cfg's latency range, failure rate and default labels.
func (t *Topology) Build(cfg Config) []Service {
	rng := NewPartitionedRNG(NewRunKey(cfg.Seed))
	services := make([]Service, 0, len(t.Services))
	for _, svc := range t.Services {
		replicas := make([]Caller, 0, len(svc.Replicas))
		for i, r := range svc.Replicas {
			spec := BackendSpec{
				Name:        ReplicaName(svc.Name, i),
				Label:       r.Label,
				FailureRate: cfg.FailureRate,
			}
			if spec.Label == "" {
				spec.Label = ReplicaLabel(svc.Name, i)
			}
			if r.FailureRate != nil {
				spec.FailureRate = *r.FailureRate
			}
			spec.Latency = resolveLatency(r, cfg.Latency)
			replicas = append(replicas, NewBackend(spec, rng.ForSubsystem(SubsystemBackend(svc.Name, i)), cfg.TimeUnit))
		}
		services = append(services, Service{Name: svc.Name, Replicas: replicas})
	}
	return services
}

func resolveLatency(r ReplicaSpec, fallback UniformLatency) LatencySampler {
	if r.Latency != nil {
		return FixedLatency(*r.Latency)
	}
	u := fallback
	if r.LatencyMin != nil {
		u.Min = *r.LatencyMin
	}
	if r.LatencyMax != nil {
		u.Max = *r.LatencyMax
	}
	if u.Max < u.Min {
		u.Max = u.Min
	}
	return u
}
