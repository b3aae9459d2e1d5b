package edits

import (
	"context"
	"strings"
)

func normalizeLocation(location string) string {
	if strings.HasPrefix(location, "!local") {
		return "local"
	}
	return location
}

// CreateAggregator builds the aggregator pattern: an input port on every
// aggregated service, the imports those ports and the aggregator need, and
// the aggregator service itself. Ports that cannot be placed are skipped;
// the pattern fails only if the aggregator service cannot be created.
func (b *Builder) CreateAggregator(ctx context.Context, req AggregatorRequest) ([]Edit, bool) {
	if !b.valid("create.pattern.aggregator", req) {
		return nil, false
	}
	var result []Edit

	for _, ip := range req.NewIps {
		port := ip.Port
		port.Location = normalizeLocation(port.Location)
		e, ok := b.CreatePort(ctx, CreatePortRequest{
			File:     ip.File,
			PortType: "inputPort",
			IsFirst:  ip.IsFirst,
			Range:    ip.Range,
			Port:     port,
		})
		if !ok {
			log.Info("skipping aggregated port", "file", ip.File, "port", port.Name)
			continue
		}
		result = append(result, e)
		for _, iface := range port.Interfaces {
			if imp, ok := b.CreateImportIfMissing(ctx, ip.File, iface.File, iface.Name, "interface"); ok {
				result = append(result, imp)
			}
		}
	}

	svc := req.Service
	for _, ip := range svc.InputPorts {
		for _, iface := range ip.Interfaces {
			if imp, ok := b.CreateImportIfMissing(ctx, svc.File, iface.File, iface.Name, "interface"); ok {
				result = append(result, imp)
			}
		}
	}
	outputs := make([]Port, len(svc.OutputPorts))
	for i, op := range svc.OutputPorts {
		op.Location = normalizeLocation(op.Location)
		outputs[i] = op
		for _, iface := range op.Interfaces {
			if imp, ok := b.CreateImportIfMissing(ctx, svc.File, iface.File, iface.Name, "interface"); ok {
				result = append(result, imp)
			}
		}
	}
	for _, emb := range req.Embeddings {
		if imp, ok := b.CreateImportIfMissing(ctx, svc.File, emb.File, emb.Name, "service"); ok {
			result = append(result, imp)
		}
	}

	e, ok := b.CreateService(ctx, CreateServiceRequest{
		File:        svc.File,
		Name:        svc.Name,
		Execution:   svc.Execution,
		InputPorts:  svc.InputPorts,
		OutputPorts: outputs,
		Embeddings:  req.Embeddings,
	})
	if !ok {
		return nil, false
	}
	return append(result, e), true
}
