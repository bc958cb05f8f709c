package main

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/graph"
)

// Units of the stack, leaves first.
const (
	unitNetwork      = "network"
	unitStorage      = "storage"
	unitWorkbench    = "workbench"
	unitPipelineRole = "pipeline-role"
	unitDomain       = "domain"
	unitPipeline     = "pipeline"
	unitRoleMapping  = "role-mapping"
	unitOutputs      = "outputs"
)

// unitEdges lists, per unit, the units it must be created after.
var unitEdges = []struct {
	unit      string
	dependsOn []string
}{
	{unitNetwork, nil},
	{unitStorage, nil},
	{unitWorkbench, []string{unitNetwork}},
	{unitPipelineRole, []string{unitNetwork}},
	{unitDomain, []string{unitNetwork, unitWorkbench, unitPipelineRole}},
	{unitPipeline, []string{unitNetwork, unitPipelineRole, unitDomain, unitStorage}},
	{unitRoleMapping, []string{unitPipeline, unitDomain}},
	{unitOutputs, []string{unitDomain, unitWorkbench, unitStorage}},
}

// planGraph declares every unit and edge of the stack.
func planGraph() (*graph.Graph, error) {
	g := graph.New()
	for _, e := range unitEdges {
		if err := g.AddUnit(e.unit); err != nil {
			return nil, err
		}
		for _, d := range e.dependsOn {
			if _, err := g.AddEdge(e.unit, d); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Stack holds the registered units. Each unit records anchor resources that
// dependents wait on through DependsOn.
type Stack struct {
	settings *Settings
	graph    *graph.Graph
	gate     *graph.Gate
	anchors  map[string][]pulumi.Resource

	Network      *NetworkResources
	Storage      *StorageResources
	Workbench    *WorkbenchResources
	PipelineRole *PipelineRoleResources
	Domain       *DomainResources
	Pipeline     *PipelineResources
	RoleMapping  *RoleMappingResources
}

func newStack(settings *Settings) (*Stack, error) {
	g, err := planGraph()
	if err != nil {
		return nil, err
	}
	return &Stack{
		settings: settings,
		graph:    g,
		gate:     graph.NewGate(g),
		anchors:  make(map[string][]pulumi.Resource),
	}, nil
}

// after returns the option making a resource of unit wait on the anchors of
// every dependency of unit.
func (s *Stack) after(unit string) (pulumi.ResourceOption, error) {
	deps, err := s.graph.Dependencies(unit)
	if err != nil {
		return nil, err
	}
	var resources []pulumi.Resource
	for _, d := range deps {
		resources = append(resources, s.anchors[d]...)
	}
	return pulumi.DependsOn(resources), nil
}

// step registers the resources of one unit. after orders them behind the
// unit's dependencies; the returned anchors are what dependents wait on.
type step func(after pulumi.ResourceOption) ([]pulumi.Resource, error)

// provide registers unit once its dependencies are registered and records
// the anchors it returns.
func (s *Stack) provide(unit string, build step) error {
	return s.gate.Run(unit, func() error {
		after, err := s.after(unit)
		if err != nil {
			return fmt.Errorf("%s: %w", unit, err)
		}
		anchors, err := build(after)
		if err != nil {
			return fmt.Errorf("%s: %w", unit, err)
		}
		s.anchors[unit] = anchors
		return nil
	})
}

// deploy registers every unit in declaration order.
func deploy(ctx *pulumi.Context, settings *Settings) (*Stack, error) {
	s, err := newStack(settings)
	if err != nil {
		return nil, err
	}

	steps := map[string]step{
		unitNetwork: func(pulumi.ResourceOption) ([]pulumi.Resource, error) {
			network, err := createNetwork(ctx, settings)
			if err != nil {
				return nil, err
			}
			s.Network = network
			return network.anchors, nil
		},
		unitStorage: func(pulumi.ResourceOption) ([]pulumi.Resource, error) {
			storage, err := createStorage(ctx, settings)
			if err != nil {
				return nil, err
			}
			s.Storage = storage
			return []pulumi.Resource{storage.Bucket, storage.Policy}, nil
		},
		unitWorkbench: func(after pulumi.ResourceOption) ([]pulumi.Resource, error) {
			workbench, err := createWorkbench(ctx, settings, s.Network, after)
			if err != nil {
				return nil, err
			}
			s.Workbench = workbench
			return []pulumi.Resource{workbench.Role, workbench.Instance}, nil
		},
		unitPipelineRole: func(after pulumi.ResourceOption) ([]pulumi.Resource, error) {
			role, err := createPipelineRole(ctx, settings, after)
			if err != nil {
				return nil, err
			}
			s.PipelineRole = role
			return []pulumi.Resource{role.Role, role.Policy}, nil
		},
		unitDomain: func(after pulumi.ResourceOption) ([]pulumi.Resource, error) {
			domain, err := createDomain(ctx, settings, s.Network, s.PipelineRole.Role, s.Workbench.Role, after)
			if err != nil {
				return nil, err
			}
			s.Domain = domain
			return []pulumi.Resource{domain.Domain, domain.SecretVersion}, nil
		},
		unitPipeline: func(after pulumi.ResourceOption) ([]pulumi.Resource, error) {
			pipeline, err := createPipeline(ctx, settings, s.Network, s.PipelineRole.Role, s.Domain.Domain, after)
			if err != nil {
				return nil, err
			}
			s.Pipeline = pipeline
			return []pulumi.Resource{pipeline.Pipeline}, nil
		},
		unitRoleMapping: func(after pulumi.ResourceOption) ([]pulumi.Resource, error) {
			mapping, err := createRoleMapping(ctx, settings, s.Network, s.Domain,
				s.PipelineRole.Role, s.Workbench.Role, after)
			if err != nil {
				return nil, err
			}
			s.RoleMapping = mapping
			return []pulumi.Resource{mapping.Invocation}, nil
		},
		unitOutputs: func(pulumi.ResourceOption) ([]pulumi.Resource, error) {
			exportOutputs(ctx, s.Domain, s.Workbench, s.Storage)
			return nil, nil
		},
	}

	for _, unit := range s.graph.Units() {
		build, ok := steps[unit]
		if !ok {
			return nil, fmt.Errorf("%w: no builder for %s", graph.ErrUnknownUnit, unit)
		}
		if err := s.provide(unit, build); err != nil {
			return nil, err
		}
	}
	return s, nil
}
