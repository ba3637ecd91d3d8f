// Command cairoproof proves and verifies VM execution traces.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/obsidianzk/cairoproof/pkg/cairoproof"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	var verbosity string

	rootCmd := &cobra.Command{
		Use:     "cairoproof",
		Short:   "Prove and verify VM execution traces",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(verbosity)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "Log level (error, warn, info, debug)")

	rootCmd.AddCommand(newProveCmd(), newVerifyCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error("Command failed", "err", err, "code", cairoproof.CodeOf(err))
		os.Exit(1)
	}
}

func initLogging(verbosity string) {
	var lvl slog.Level
	switch verbosity {
	case "error":
		lvl = slog.LevelError
	case "warn":
		lvl = slog.LevelWarn
	case "debug":
		lvl = slog.LevelDebug
	default:
		lvl = slog.LevelInfo
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
}

func newProveCmd() *cobra.Command {
	var (
		programPath string
		tracePath   string
		memoryPath  string
		outputPath  string
		maxSteps    uint64
	)

	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Generate a proof for an execution trace",
		Long: `Generate a proof for a program execution.

With --trace and --memory, the supplied register trace and memory log are
validated by full re-execution and then proven. Without them, the program
is executed from its entry point and the resulting trace is proven.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(programPath)
			if err != nil {
				return err
			}
			cfg := cairoproof.DefaultConfig()
			if maxSteps > 0 {
				cfg.MaxSteps = maxSteps
			}
			prover, err := cairoproof.NewProver(cfg)
			if err != nil {
				return err
			}

			var proof []byte
			if tracePath != "" || memoryPath != "" {
				if tracePath == "" || memoryPath == "" {
					return fmt.Errorf("--trace and --memory must be given together")
				}
				traceBytes, err := os.ReadFile(tracePath)
				if err != nil {
					return err
				}
				states, err := cairoproof.LoadRegisterTrace(traceBytes)
				if err != nil {
					return err
				}
				memBytes, err := os.ReadFile(memoryPath)
				if err != nil {
					return err
				}
				memLog, err := cairoproof.LoadMemoryLog(memBytes)
				if err != nil {
					return err
				}
				log.Info("Replaying external trace", "steps", len(states), "memory_entries", len(memLog))
				proof, err = prover.Prove(prog, states, memLog)
				if err != nil {
					return err
				}
			} else {
				log.Info("Running program from entry point", "entry_pc", prog.EntryPc)
				proof, err = prover.Run(prog)
				if err != nil {
					return err
				}
			}

			if err := os.WriteFile(outputPath, proof, 0o644); err != nil {
				return err
			}
			log.Info("Proof written", "path", outputPath, "bytes", len(proof))
			return nil
		},
	}

	cmd.Flags().StringVar(&programPath, "program", "", "Program artifact (JSON)")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Binary register trace file")
	cmd.Flags().StringVar(&memoryPath, "memory", "", "Binary memory log file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "proof.bin", "Output proof file")
	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 0, "Re-execution step ceiling (0 = default)")
	cmd.MarkFlagRequired("program")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		programPath string
		proofPath   string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a proof against a program",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(programPath)
			if err != nil {
				return err
			}
			proof, err := os.ReadFile(proofPath)
			if err != nil {
				return err
			}
			verifier, err := cairoproof.NewVerifier(cairoproof.DefaultConfig())
			if err != nil {
				return err
			}
			if err := verifier.Verify(proof, prog); err != nil {
				return err
			}
			log.Info("Proof accepted", "program", programPath, "proof", proofPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&programPath, "program", "", "Program artifact (JSON)")
	cmd.Flags().StringVar(&proofPath, "proof", "", "Proof file")
	cmd.MarkFlagRequired("program")
	cmd.MarkFlagRequired("proof")
	return cmd
}

func loadProgram(path string) (*cairoproof.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cairoproof.ParseProgram(data)
}
