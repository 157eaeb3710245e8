package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "matrixci",
	Short: "Run CI workflows locally: matrix fan-out, caching, artifacts, coverage",
	Long: `MatrixCI executes CI workflow definitions on the local host: it expands
matrix jobs into cells, orders jobs by their needs graph, caches provisioned
environments, moves artifacts between jobs, and forwards coverage reports.

Examples:
	# Show available commands and global flags
	matrixci --help

	# Run a workflow for a push to master
	matrixci run --workflow .ci/workflow.yml

	# Lint a workflow without running it
	matrixci check --workflow .ci/workflow.yml

	# List lint rules
	matrixci rules list

	# Serve past run state over HTTP
	matrixci serve --listen :8320

Output:
	By default, commands write human-readable output to stdout.
	Some commands support structured output via emitter flags (see each command's --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, "verbose", false, "Enable verbose logging (prints step output and full error details)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
