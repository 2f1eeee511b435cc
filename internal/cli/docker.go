package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/model"
)

// NewDockerCommand creates the docker command group.
func NewDockerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docker",
		Short: "Run jobs with the docker executor",
	}

	cmd.AddCommand(NewDockerRunCommand(rootOpts))

	return cmd
}

// parseInputFlag parses an --inputs value of the form "CID" or
// "CID:/mount/path" into a storage spec. The mount path defaults
// to /inputs.
func parseInputFlag(value string) (model.StorageSpec, error) {
	cid := value
	path := "/inputs"
	if i := strings.Index(value, ":"); i >= 0 {
		cid = value[:i]
		path = value[i+1:]
	}
	if !strings.HasPrefix(path, "/") {
		return model.StorageSpec{}, fmt.Errorf("input mount path %q must be absolute", path)
	}
	if err := model.ValidateCID(cid); err != nil {
		return model.StorageSpec{}, err
	}
	return model.StorageSpec{Kind: model.StorageIPFS, CID: cid, Path: path}, nil
}

// parseOutputFlag parses an --output value of the form "name" or
// "name:/container/path" into a storage spec. The path defaults to
// /<name>.
func parseOutputFlag(value string) (model.StorageSpec, error) {
	name := value
	path := ""
	if i := strings.Index(value, ":"); i >= 0 {
		name = value[:i]
		path = value[i+1:]
	}
	if name == "" {
		return model.StorageSpec{}, fmt.Errorf("output volume needs a name")
	}
	if path == "" {
		path = "/" + name
	}
	if !strings.HasPrefix(path, "/") {
		return model.StorageSpec{}, fmt.Errorf("output mount path %q must be absolute", path)
	}
	return model.StorageSpec{Name: name, Path: path}, nil
}
