package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/config"
	"github.com/roach88/trawl/internal/engine"
	"github.com/roach88/trawl/internal/executor"
	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/storage"
	"github.com/roach88/trawl/internal/store"
)

// DockerRunOptions holds flags for the docker run command.
type DockerRunOptions struct {
	*RootOptions
	Inputs      []string
	Outputs     []string
	Env         []string
	WorkingDir  string
	CPU         string
	Memory      string
	GPU         string
	Wait        bool
	Download    bool
	DownloadDir string
	Local       bool

	// Executor allows overriding the container executor (for testing).
	// If nil, defaults to the docker executor from config.
	Executor executor.Executor

	// IDGenerator allows overriding the job ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.JobIDGenerator
}

// NewDockerRunCommand creates the docker run command.
func NewDockerRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DockerRunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [flags] <image> [-- <entrypoint>...]",
		Short: "Submit a docker job",
		Long: `Submit a job that runs a container image against pinned input data.

Each --inputs CID is fetched from the IPFS gateway and mounted
read-only into the container. Output volumes (default outputs:/outputs)
are captured after the run and published for download with get.

Examples:
  trawl docker run --inputs QmUCJuFZyv7xGBt5dAbuCV4HBYa5NTh93m8zHjUPFvTpPM ubuntu -- cat /inputs/data.txt
  trawl docker run --inputs Qm...:/project --gpu 1 --download --wait openmm/openmm:7.5.1 -- python run_openmm_simulation.py
  trawl docker run --local busybox -- echo hello`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDockerRun(opts, cmd, args)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "inputs", "i", nil, "input CID to mount, as CID or CID:/path (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Outputs, "output", "o", nil, "output volume, as name or name:/path (default outputs:/outputs)")
	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "environment variable for the container, as KEY=value")
	cmd.Flags().StringVarP(&opts.WorkingDir, "workdir", "w", "", "working directory inside the container")
	cmd.Flags().StringVar(&opts.CPU, "cpu", "", "CPU limit (e.g. 2)")
	cmd.Flags().StringVar(&opts.Memory, "memory", "", "memory limit (e.g. 4gb)")
	cmd.Flags().StringVar(&opts.GPU, "gpu", "", "GPU count (e.g. 1)")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "block until the job reaches a terminal state")
	cmd.Flags().BoolVar(&opts.Download, "download", false, "download results when the job completes (implies --wait)")
	cmd.Flags().StringVar(&opts.DownloadDir, "download-dir", ".", "directory to download results into")
	cmd.Flags().BoolVar(&opts.Local, "local", false, "execute in-process instead of handing off to a serve daemon")

	return cmd
}

func runDockerRun(opts *DockerRunOptions, cmd *cobra.Command, args []string) error {
	spec, err := specFromFlags(opts, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid job", err)
	}

	return executeSubmission(opts.RootOptions, trackOptions{
		Wait:        opts.Wait,
		Download:    opts.Download,
		DownloadDir: opts.DownloadDir,
		Local:       opts.Local,
		Executor:    opts.Executor,
		IDGenerator: opts.IDGenerator,
	}, spec, cmd)
}

// trackOptions carries the submit-and-follow behavior shared by
// docker run and run.
type trackOptions struct {
	Wait        bool
	Download    bool
	DownloadDir string
	Local       bool
	Executor    executor.Executor
	IDGenerator engine.JobIDGenerator
}

// executeSubmission submits a validated spec and, depending on flags,
// follows it to a terminal state and downloads its results.
func executeSubmission(rootOpts *RootOptions, opts trackOptions, spec model.JobSpec, cmd *cobra.Command) error {
	setupLogging(rootOpts.Verbose)

	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, cfg.DataDir, engineOptions(cfg, &opts)...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Local {
		// In-process execution needs a working container runtime.
		// Submit-only runs skip the check; a serve process executes.
		if err := eng.Init(ctx); err != nil {
			return WrapExitError(ExitCommandError, "engine init failed", err)
		}
	}

	job, err := eng.Submit(ctx, spec)
	if err != nil {
		return WrapExitError(ExitFailure, "job submission failed", err)
	}

	if rootOpts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Job submitted: %s\n", model.ShortID(job.ID))
		fmt.Fprintf(cmd.OutOrStdout(), "To check status: trawl describe %s\n", model.ShortID(job.ID))
	}

	if opts.Local {
		// ProcessOne's error is already recorded on the job; the
		// terminal state below is the authoritative outcome.
		_ = eng.ProcessOne(ctx, job.ID)
	}

	wait := opts.Wait || opts.Download || opts.Local
	if wait {
		job, err = engine.WaitForJob(ctx, st, job.ID, 0)
		if err != nil {
			return WrapExitError(ExitCommandError, "waiting for job", err)
		}
	}

	var downloadDir string
	if opts.Download && job.State == model.StateCompleted {
		downloadDir, err = downloadResults(ctx, cfg, st, job.ID, opts.DownloadDir)
		if err != nil {
			return WrapExitError(ExitCommandError, "downloading results", err)
		}
	}

	if rootOpts.Format == "json" {
		formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
		if err := formatter.SuccessIndented(map[string]any{
			"job":          job,
			"download_dir": downloadDir,
		}); err != nil {
			return err
		}
	} else if wait {
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", model.ShortID(job.ID), job.State)
		if downloadDir != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Results downloaded to %s\n", downloadDir)
		}
	}

	if wait && job.State != model.StateCompleted {
		return NewExitError(ExitFailure, fmt.Sprintf("job %s ended %s", model.ShortID(job.ID), job.State))
	}

	return nil
}

// specFromFlags assembles the job spec from the docker run flag set.
func specFromFlags(opts *DockerRunOptions, args []string) (model.JobSpec, error) {
	spec := model.JobSpec{
		Engine: model.EngineSpec{
			Image:      args[0],
			Entrypoint: args[1:],
			Env:        opts.Env,
			WorkingDir: opts.WorkingDir,
		},
		Resources: model.ResourceSpec{
			CPU:    opts.CPU,
			Memory: opts.Memory,
			GPU:    opts.GPU,
		},
	}

	for _, in := range opts.Inputs {
		input, err := parseInputFlag(in)
		if err != nil {
			return model.JobSpec{}, err
		}
		spec.Inputs = append(spec.Inputs, input)
	}

	outputs := opts.Outputs
	if len(outputs) == 0 {
		outputs = []string{"outputs:/outputs"}
	}
	for _, o := range outputs {
		out, err := parseOutputFlag(o)
		if err != nil {
			return model.JobSpec{}, err
		}
		spec.Outputs = append(spec.Outputs, out)
	}

	return spec, spec.Validate()
}

// engineOptions builds the engine configuration for CLI commands.
func engineOptions(cfg config.Config, opts *trackOptions) []engine.Option {
	reg := storage.NewRegistry()
	var ipfsOpts []storage.IPFSOption
	if cfg.FetchTimeout > 0 {
		ipfsOpts = append(ipfsOpts, storage.WithTimeout(cfg.FetchTimeout.Std()))
	}
	reg.Register(model.StorageIPFS, storage.NewIPFS(cfg.IPFSGateway, ipfsOpts...))
	reg.Register(model.StorageLocal, storage.Local{})

	engOpts := []engine.Option{
		engine.WithStorage(reg),
		engine.WithExecutor(executor.NewDocker(cfg.DockerBinary)),
	}
	if opts != nil && opts.Executor != nil {
		engOpts = append(engOpts, engine.WithExecutor(opts.Executor))
	}
	if opts != nil && opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	return engOpts
}

// downloadResults materializes a job's published outputs under baseDir.
// Returns the directory the results landed in.
func downloadResults(ctx context.Context, cfg config.Config, st *store.Store, jobID, baseDir string) (string, error) {
	out, err := st.GetOutputs(ctx, jobID)
	if err != nil {
		return "", err
	}
	pub, err := publisherFor(cfg, out)
	if err != nil {
		return "", err
	}
	dest := resultsDestDir(baseDir, jobID)
	if err := pub.Retrieve(ctx, out, dest); err != nil {
		return "", err
	}
	return dest, nil
}
