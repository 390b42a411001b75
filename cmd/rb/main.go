package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reactboard/internal/config"
	"reactboard/internal/db"
	"reactboard/internal/domain"
	"reactboard/internal/engine"
	"reactboard/internal/logging"
	"reactboard/internal/migrate"
	"reactboard/internal/registry"
	"reactboard/internal/server"
	"reactboard/internal/slack"
	"reactboard/internal/supervisor"
	"reactboard/internal/syncer"
	rbsdk "reactboard/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "rb",
	Short: "Reactboard CLI",
	Long: `Reactboard turns emoji reactions on chat messages into tracked tasks.
React to a message with a mapped emoji and a task appears on your board;
change the emoji and the task moves through InProgress, Blocked and
Completed with a full change history.`,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REACTBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	logging.Init(logging.Config{
		Level:      viper.GetString("log-level"),
		JSONOutput: viper.GetBool("log-json"),
	})
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("data-dir", "d", ".", "data directory (holds .reactboard/)")
	rootCmd.PersistentFlags().StringP("config", "c", "workspaces.yaml", "workspaces file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace..error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "structured JSON logs instead of console output")
	rootCmd.PersistentFlags().String("email", "", "acting person's email")
	rootCmd.PersistentFlags().String("name", "", "acting person's display name")
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-json", rootCmd.PersistentFlags().Lookup("log-json"))
	_ = viper.BindPFlag("email", rootCmd.PersistentFlags().Lookup("email"))
	_ = viper.BindPFlag("name", rootCmd.PersistentFlags().Lookup("name"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(emojiCmd())
	rootCmd.AddCommand(statusCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var backfill bool
	var laneCount int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to every configured workspace and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{DataDir: viper.GetString("data-dir")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			reg := registry.FromConfig(cfg)
			client := slack.NewHTTPClient()
			eng := engine.New(conn, reg, client)
			if err := eng.LoadStoredMappings(cmd.Context()); err != nil {
				return err
			}

			laneCtx, stopLanes := context.WithCancel(context.Background())
			defer stopLanes()
			lanes := engine.NewLanes(eng, laneCount)
			lanes.Start(laneCtx)

			mgr := supervisor.NewManager(reg, client, lanes)
			mgr.StartAll(cmd.Context())

			s := syncer.New(reg, client, eng, lanes)
			log := logging.Component("main")
			if backfill {
				for _, name := range reg.Names() {
					go func(ws string) {
						if err := s.Backfill(context.WithoutCancel(cmd.Context()), ws); err != nil {
							log.Error().Err(err).Str("workspace", ws).Msg("startup backfill failed")
						}
					}(name)
				}
			}

			handler, err := server.New(server.Config{Engine: eng, Syncer: s, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().
				Str("addr", addr).Str("base_path", basePath).
				Int("workspaces", len(reg.Names())).
				Msg("serving Reactboard API")
			err = srv.ListenAndServe()

			// In-flight events drain before the process exits.
			mgr.Shutdown()
			stopLanes()
			lanes.Wait()

			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&backfill, "backfill", false, "re-scan captured messages for reactions made while offline")
	cmd.Flags().IntVar(&laneCount, "lanes", 0, "event lane count (0 = default)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{DataDir: viper.GetString("data-dir")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("database is up to date at", db.Path(viper.GetString("data-dir")))
			return nil
		},
	}
}

func boardCmd() *cobra.Command {
	var workspace, mode string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show your task board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				person, err := actingPerson(ctx, e)
				if err != nil {
					return err
				}
				ws := workspace
				if ws == "" {
					link, err := e.ActiveWorkspace(ctx, person.ID)
					if err != nil {
						return fmt.Errorf("no workspace given and no active workspace: %w", err)
					}
					ws = link.WorkspaceName
				}
				board, err := e.Board(ctx, person.ID, ws, domain.BoardMode(mode))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("%s (%s)", ws, modeOrDefault(mode))
				tw.AppendHeader(table.Row{"Status", "Task", "Message", "Link"})
				appendBoardRows(tw, domain.StatusInProgress, board.InProgress)
				appendBoardRows(tw, domain.StatusBlocked, board.Blocked)
				appendBoardRows(tw, domain.StatusCompleted, board.Completed)
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace (defaults to active)")
	cmd.Flags().StringVar(&mode, "mode", "assigned", "assigned or initiated")
	return cmd
}

func appendBoardRows(tw table.Writer, status domain.Status, entries []domain.BoardEntry) {
	for _, entry := range entries {
		tw.AppendRow(table.Row{status, entry.Task.ID, truncate(entry.Message.Content, 60), entry.Message.Permalink})
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	task.AddCommand(taskShowCmd())
	return task
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its change history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				detail, err := e.TaskDetail(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				fmt.Printf("Task %s [%s] in %s\n", detail.Task.ID, detail.Task.Status, detail.Task.WorkspaceName)
				fmt.Printf("Message: %s\n", truncate(detail.Message.Content, 100))
				if detail.Message.Permalink != "" {
					fmt.Printf("Link: %s\n", detail.Message.Permalink)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "From", "To", "At"})
				for _, ch := range detail.Changes {
					tw.AppendRow(table.Row{ch.Idx, ch.Old, ch.New, ch.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Short: "Manage workspace links"}
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceLinkCmd())
	ws.AddCommand(workspaceUnlinkCmd())
	ws.AddCommand(workspaceSwitchCmd())
	return ws
}

func workspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured workspaces and your link state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				person, err := actingPerson(ctx, e)
				if err != nil {
					return err
				}
				entries, err := e.ListWorkspaces(ctx, person.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Workspace", "Linked", "Active", "Member ID"})
				for _, entry := range entries {
					member := ""
					if entry.MemberID != nil {
						member = *entry.MemberID
					}
					tw.AppendRow(table.Row{entry.Name, entry.IsLinked, entry.IsActive, member})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func workspaceLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <workspace>",
		Short: "Link yourself to a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				person, err := actingPerson(ctx, e)
				if err != nil {
					return err
				}
				link, err := e.Link(ctx, person.ID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(link)
				}
				fmt.Printf("linked to %s", link.WorkspaceName)
				if link.IsActive {
					fmt.Print(" (active)")
				}
				fmt.Println()
				fmt.Println("run a server-side initial sync to import existing reactions")
				return nil
			})
		},
	}
	return cmd
}

func workspaceUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <workspace>",
		Short: "Unlink yourself from a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				person, err := actingPerson(ctx, e)
				if err != nil {
					return err
				}
				if err := e.Unlink(ctx, person.ID, args[0]); err != nil {
					return err
				}
				fmt.Println("unlinked from", args[0])
				return nil
			})
		},
	}
}

func workspaceSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <workspace>",
		Short: "Make a linked workspace your active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				person, err := actingPerson(ctx, e)
				if err != nil {
					return err
				}
				link, err := e.Switch(ctx, person.ID, args[0])
				if err != nil {
					return err
				}
				fmt.Println("active workspace is now", link.WorkspaceName)
				return nil
			})
		},
	}
}

func emojiCmd() *cobra.Command {
	emoji := &cobra.Command{Use: "emoji", Short: "Inspect and edit emoji mappings"}
	emoji.AddCommand(emojiShowCmd())
	emoji.AddCommand(emojiSetCmd())
	return emoji
}

func emojiShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <workspace>",
		Short: "Show the effective emoji mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				mapping, err := e.EmojiMapping(args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(mapping)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Emoji"})
				tw.AppendRow(table.Row{domain.StatusInProgress, strings.Join(mapping.InProgress, ", ")})
				tw.AppendRow(table.Row{domain.StatusBlocked, strings.Join(mapping.Blocked, ", ")})
				tw.AppendRow(table.Row{domain.StatusCompleted, strings.Join(mapping.Completed, ", ")})
				tw.Render()
				return nil
			})
		},
	}
}

func emojiSetCmd() *cobra.Command {
	var inProgress, blocked, completed []string
	cmd := &cobra.Command{
		Use:   "set <workspace>",
		Short: "Replace a workspace's emoji mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				settings, err := e.UpdateEmojiMapping(ctx, args[0], domain.EmojiMapping{
					InProgress: inProgress,
					Blocked:    blocked,
					Completed:  completed,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(settings)
				}
				fmt.Println("emoji mapping updated for", settings.WorkspaceName)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&inProgress, "in-progress", nil, "emoji names mapping to InProgress")
	cmd.Flags().StringSliceVar(&blocked, "blocked", nil, "emoji names mapping to Blocked")
	cmd.Flags().StringSliceVar(&completed, "completed", nil, "emoji names mapping to Completed")
	return cmd
}

func statusCmd() *cobra.Command {
	var apiURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connection and sync state of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := rbsdk.New(apiURL)
			statuses, err := client.Statuses(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(statuses)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Workspace", "State", "Heartbeat", "Syncing", "Progress", "Error"})
			for _, st := range statuses {
				heartbeat := ""
				if st.LastHeartbeat != nil {
					heartbeat = *st.LastHeartbeat
				}
				tw.AppendRow(table.Row{st.WorkspaceName, st.State, heartbeat, st.IsSyncing, st.SyncProgress, st.Error})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://127.0.0.1:8080/v1", "base URL of a running rb serve")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{DataDir: viper.GetString("data-dir")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	reg := registry.FromConfig(cfg)
	e := engine.New(conn, reg, slack.NewHTTPClient())
	if err := e.LoadStoredMappings(ctx); err != nil {
		return err
	}
	return fn(ctx, e)
}

// actingPerson resolves the --email/--name flags to a person row, creating
// it on first use.
func actingPerson(ctx context.Context, e *engine.Engine) (domain.Person, error) {
	email := viper.GetString("email")
	if email == "" {
		return domain.Person{}, fmt.Errorf("--email is required (or set REACTBOARD_EMAIL)")
	}
	name := viper.GetString("name")
	if name == "" {
		name = email[:strings.IndexByte(email+"@", '@')]
	}
	return e.Repo.EnsurePerson(ctx, name, email)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return string(domain.BoardAssigned)
	}
	return mode
}

// truncate shortens s to at most n runes, never splitting a rune.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
