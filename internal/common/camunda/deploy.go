package camunda

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed processes/*.bpmn
var processFS embed.FS

// Resource is a BPMN file shipped with the binary.
type Resource struct {
	Name       string
	Definition []byte
}

// Processes returns the embedded process definitions sorted by file name.
func Processes() ([]Resource, error) {
	names, err := fs.Glob(processFS, "processes/*.bpmn")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]Resource, 0, len(names))
	for _, name := range names {
		data, err := processFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, Resource{Name: name[len("processes/"):], Definition: data})
	}
	return out, nil
}

// DeployProcesses deploys every embedded definition. Unchanged resources keep their version.
func (c *Client) DeployProcesses(ctx context.Context) (int, error) {
	resources, err := Processes()
	if err != nil {
		return 0, err
	}

	_, err = c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()

		cmd := c.client.NewDeployResourceCommand()
		for _, r := range resources {
			cmd = cmd.AddResource(r.Definition, r.Name)
		}
		return cmd.Send(ctx)
	}, "deploy processes")
	if err != nil {
		return 0, err
	}
	return len(resources), nil
}
