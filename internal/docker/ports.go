package docker

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/mmr-tortoise/portjar/internal/model"
)

const (
	// LabelService overrides the service name a container's ports are
	// imported under.
	LabelService = "portjar.service"

	// LabelComposeService is set by docker compose on every service
	// container.
	LabelComposeService = "com.docker.compose.service"
)

// ListPublishedPorts returns one reservation per public host port of every
// running container, sorted by port. A port published for both tcp and udp
// by the same container becomes a single reservation with no protocol.
func ListPublishedPorts(ctx context.Context, cli ContainerLister) ([]model.Reservation, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("status", "running")),
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	var out []model.Reservation
	for _, c := range containers {
		out = append(out, containerReservations(c)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out, nil
}

// ListPublishedPorts is the package function bound to this client.
func (c *Client) ListPublishedPorts(ctx context.Context) ([]model.Reservation, error) {
	return ListPublishedPorts(ctx, c.inner)
}

// containerReservations maps one container's public bindings. Bindings
// with no public port are skipped, and the duplicate bindings Docker
// reports for IPv4 and IPv6 collapse into one.
func containerReservations(c container.Summary) []model.Reservation {
	service := serviceName(c)
	if service == "" {
		return nil
	}

	protos := make(map[int]model.Protocol)
	var order []int
	for _, p := range c.Ports {
		if p.PublicPort == 0 {
			continue
		}
		port := int(p.PublicPort)
		proto := model.Protocol(strings.ToLower(p.Type))
		if proto != model.ProtocolTCP && proto != model.ProtocolUDP {
			continue
		}

		prev, seen := protos[port]
		switch {
		case !seen:
			protos[port] = proto
			order = append(order, port)
		case prev != proto:
			protos[port] = model.ProtocolAny
		}
	}

	out := make([]model.Reservation, 0, len(order))
	for _, port := range order {
		out = append(out, model.Reservation{Service: service, Protocol: protos[port], Port: port})
	}
	return out
}

// serviceName picks the portjar label, then the compose service, then the
// container name. "/" and control characters cannot appear in a service
// token, so each becomes "-".
func serviceName(c container.Summary) string {
	name := c.Labels[LabelService]
	if name == "" {
		name = c.Labels[LabelComposeService]
	}
	if name == "" && len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || unicode.IsControl(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
}
