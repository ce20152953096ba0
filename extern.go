package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/vesaa/sharedshape/internal/config"
	"github.com/vesaa/sharedshape/internal/extern"
	"github.com/vesaa/sharedshape/internal/logging"
)

func openWorkspace(cmd *cobra.Command, gitProgress io.Writer) (*extern.Workspace, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return extern.Open(cfg.WorkspaceRoot, workspaceOptions(cfg, gitProgress))
}

func workspaceOptions(cfg *config.Config, gitProgress io.Writer) extern.Options {
	return extern.Options{
		StateDir: cfg.StateDir,
		Credentials: extern.Credentials{
			Username:      cfg.GitUsername,
			Password:      cfg.GitPassword,
			SSHUser:       cfg.SSHUser,
			SSHKeyPath:    cfg.SSHKeyPath,
			SSHKnownHosts: cfg.SSHKnownHosts,
		},
		GitProgress: gitProgress,
		Logger:      logging.GetLogger(),
	}
}

// withWorkspace opens the workspace, runs fn and closes it again.
func withWorkspace(cmd *cobra.Command, gitProgress io.Writer, fn func(*extern.Workspace) error) error {
	ws, err := openWorkspace(cmd, gitProgress)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ws)
}

func externCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extern",
		Short: "Manage external UI units embedded by reference",
		Long: `External units are independently versioned git repositories embedded
under the project. externals.yaml records one pointer per unit (path, URL,
pinned commit); "extern init" and "extern update" materialize the files.`,
	}

	// ── add ───────────────────────────────────────────────────────────────────
	addCmd := &cobra.Command{
		Use:   "add <url> <path>",
		Short: "Clone a repository into <path> and pin it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, _ := cmd.Flags().GetString("ref")
			return withWorkspace(cmd, gitProgress(cmd), func(ws *extern.Workspace) error {
				ctx, stop := signalContext(cmd)
				defer stop()
				ptr, err := ws.Add(ctx, args[1], args[0], ref)
				if err != nil {
					return err
				}
				fmt.Printf("  ✓ %s → %s @ %s\n", ptr.Path, ptr.URL, ptr.Revision)
				return nil
			})
		},
	}
	addCmd.Flags().String("ref", "", "Branch, tag or commit to pin (default: remote HEAD)")
	addGitProgressFlag(addCmd)

	// ── init ──────────────────────────────────────────────────────────────────
	initCmd := &cobra.Command{
		Use:   "init [path...]",
		Short: "Register pointers locally without fetching",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, nil, func(ws *extern.Workspace) error {
				ptrs, err := ws.Init(args...)
				if err != nil {
					return err
				}
				for _, ptr := range ptrs {
					fmt.Printf("  ✓ initialized %s (%s)\n", ptr.Path, ptr.URL)
				}
				return nil
			})
		},
	}

	// ── update ────────────────────────────────────────────────────────────────
	updateCmd := &cobra.Command{
		Use:   "update [path...]",
		Short: "Check out every initialized pointer at its pinned revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			doInit, _ := cmd.Flags().GetBool("init")
			remote, _ := cmd.Flags().GetBool("remote")

			return withWorkspace(cmd, gitProgress(cmd), func(ws *extern.Workspace) error {
				m, err := ws.Manifest()
				if err != nil {
					return err
				}
				ptrs, err := m.Select(args...)
				if err != nil {
					return err
				}

				bar := progressbar.NewOptions(len(ptrs),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("updating externals"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)

				ctx, stop := signalContext(cmd)
				defer stop()
				results, err := ws.Update(ctx, extern.UpdateOptions{
					Paths:  args,
					Init:   doInit,
					Remote: remote,
					Done: func(r extern.UpdateResult) {
						bar.Describe(r.Path)
						_ = bar.Add(1)
					},
				})
				_ = bar.Finish()

				for _, r := range results {
					printUpdateResult(r)
				}
				return err
			})
		},
	}
	updateCmd.Flags().Bool("init", false, "Initialize uninitialized pointers first")
	updateCmd.Flags().Bool("remote", false, "Move each pin to the tip of its tracked branch")
	addGitProgressFlag(updateCmd)

	// ── status ────────────────────────────────────────────────────────────────
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show each pointer's pinned and checked-out revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withWorkspace(cmd, nil, func(ws *extern.Workspace) error {
				all, err := ws.Status()
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(all)
				}
				for _, st := range all {
					printStatus(st)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().Bool("json", false, "Print JSON")

	// ── pin ───────────────────────────────────────────────────────────────────
	pinCmd := &cobra.Command{
		Use:   "pin <path>",
		Short: "Record the checkout's current commit as the pinned revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, nil, func(ws *extern.Workspace) error {
				ptr, err := ws.Pin(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("  ✓ %s pinned @ %s\n", ptr.Path, ptr.Revision)
				return nil
			})
		},
	}

	// ── deinit ────────────────────────────────────────────────────────────────
	deinitCmd := &cobra.Command{
		Use:   "deinit <path>...",
		Short: "Remove checkouts, keeping the pointers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return withWorkspace(cmd, nil, func(ws *extern.Workspace) error {
				for _, p := range args {
					if err := ws.Deinit(p, force); err != nil {
						return err
					}
					fmt.Printf("  ✓ cleared %s\n", extern.CleanPath(p))
				}
				return nil
			})
		},
	}
	deinitCmd.Flags().BoolP("force", "f", false, "Discard local changes and unpinned commits")

	// ── sync ──────────────────────────────────────────────────────────────────
	syncCmd := &cobra.Command{
		Use:   "sync [path...]",
		Short: "Copy pointer URLs from externals.yaml into local state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, nil, func(ws *extern.Workspace) error {
				ptrs, err := ws.Sync(args...)
				if err != nil {
					return err
				}
				for _, ptr := range ptrs {
					fmt.Printf("  ✓ synced %s → %s\n", ptr.Path, ptr.URL)
				}
				return nil
			})
		},
	}

	// ── rm ────────────────────────────────────────────────────────────────────
	rmCmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Drop a pointer and delete its directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return withWorkspace(cmd, nil, func(ws *extern.Workspace) error {
				if err := ws.Remove(args[0], force); err != nil {
					return err
				}
				fmt.Printf("  ✓ removed %s\n", extern.CleanPath(args[0]))
				return nil
			})
		},
	}
	rmCmd.Flags().BoolP("force", "f", false, "Discard local changes and unpinned commits")

	cmd.AddCommand(addCmd, initCmd, updateCmd, statusCmd, pinCmd, deinitCmd, syncCmd, rmCmd)
	return cmd
}

func addGitProgressFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("git-progress", false, "Show git transfer progress on stderr")
}

func gitProgress(cmd *cobra.Command) io.Writer {
	if on, _ := cmd.Flags().GetBool("git-progress"); on {
		return os.Stderr
	}
	return nil
}

func printUpdateResult(r extern.UpdateResult) {
	switch r.Action {
	case extern.ActionFailed:
		color.Red("  ✗ %s: %v", r.Path, r.Err)
	case extern.ActionSkipped:
		color.New(color.Faint).Printf("  - %s: not initialized\n", r.Path)
	case extern.ActionUpToDate:
		fmt.Printf("  ✓ %s @ %s\n", r.Path, short(r.To))
	default:
		color.Green("  ✓ %s: %s %s", r.Path, r.Action, short(r.To))
	}
}

// printStatus uses the "git submodule status" prefixes: '-' not checked
// out, '+' HEAD differs from the pin, ' ' in sync.
func printStatus(st extern.ComponentStatus) {
	switch st.State {
	case extern.StateInSync:
		fmt.Printf(" %s %s\n", st.Pinned, st.Path)
	case extern.StateModified:
		color.Yellow("+%s %s (pinned %s)", st.Current, st.Path, short(st.Pinned))
	default:
		color.Red("-%s %s (%s)", st.Pinned, st.Path, st.State)
	}
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
