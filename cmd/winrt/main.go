package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/config"
	"github.com/wippyai/winrt-runtime/iid"
	"github.com/wippyai/winrt-runtime/platform/native"
	"github.com/wippyai/winrt-runtime/runtime"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "winrt",
		Short:         "Inspect and activate Windows Runtime components",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to "+config.FileName+" (default: discovered)")

	root.AddCommand(
		iidCommand(),
		signatureCommand(),
		genericsCommand(),
		activateCommand(&configPath),
		exploreCommand(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func iidCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "iid <type-expr>...",
		Short: "Print the interface identifier of each type expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, expr := range args {
				t, err := iid.Parse(expr)
				if err != nil {
					return err
				}
				id, err := iid.Of(t)
				if err != nil {
					return err
				}
				if verbose {
					fmt.Fprintf(out, "%s\t%s\t%s\n", t, id, t.Signature())
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", t, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print the signature string")
	return cmd
}

func signatureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signature <type-expr>",
		Short: "Print the signature string a type expression hashes to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := iid.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Signature())
			return nil
		},
	}
}

func genericsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generics",
		Short: "List the well-known parameterized interfaces and delegates",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, g := range iid.Generics() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-50s %d  %s\n", g.Name, g.Arity, g.PIID)
			}
		},
	}
}

func activateCommand(configPath *string) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "activate <runtime-class>",
		Short: "Activate a runtime class and describe the instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			obj, err := rt.Activate(args[0])
			if err != nil {
				return err
			}
			if as != "" {
				t, err := iid.Parse(as)
				if err != nil {
					return err
				}
				id, err := rt.IID(t)
				if err != nil {
					return err
				}
				cast, err := obj.As(id, abi.Extend(abi.IInspectable, t.String(), id))
				if err != nil {
					return err
				}
				defer cast.Release()
				fmt.Fprintf(cmd.OutOrStdout(), "cast to %s (%s)\n", t, id)
			}
			return describe(cmd.OutOrStdout(), obj)
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "type expression to cast the instance to")
	return cmd
}

func exploreCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "explore",
		Short: "Interactively evaluate type expressions and activate classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("explore needs an interactive terminal")
			}
			return runExplorer(*configPath)
		},
	}
}

// openRuntime builds a runtime over the real process using the named or
// discovered configuration.
func openRuntime(configPath string) (*runtime.Runtime, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		wd, _ := os.Getwd()
		cfg, err = config.Discover(wd)
	}
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return nil, err
	}
	runtime.SetAllLoggers(logger)
	if cfg.Path != "" {
		logger.Debug("configuration loaded", zap.String("path", filepath.Clean(cfg.Path)))
	}

	p, err := native.New()
	if err != nil {
		return nil, err
	}
	return runtime.New(p, cfg)
}

func describe(w io.Writer, obj *abi.Object) error {
	name, err := obj.RuntimeClassName()
	if err != nil {
		return err
	}
	ids, err := obj.Iids()
	if err != nil {
		return err
	}
	trust, err := obj.TrustLevel()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("class"), funcStyle.Render(name))
	fmt.Fprintf(w, "trust: %s\n", trust)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = "  " + typeStyle.Render(id.String())
	}
	fmt.Fprintf(w, "interfaces (%d):\n%s\n", len(ids), strings.Join(names, "\n"))
	return nil
}
