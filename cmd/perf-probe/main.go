package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "perf-probe",
	Short: "Demo web application with request profiling and slow query logging",
	Long: `perf-probe runs a small web application bound to the profiler. Request
profiles are served on /debug/perf, Prometheus metrics on /metrics, and slow
SQL queries are logged as warnings.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
