package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/mnemo/pkg/buffer"
	"github.com/dotsetgreg/mnemo/pkg/config"
	"github.com/dotsetgreg/mnemo/pkg/engine"
	"github.com/dotsetgreg/mnemo/pkg/memory"
	"github.com/dotsetgreg/mnemo/pkg/vector"
)

func printJSON(v any) {
	if formatFlag == "text" {
		fmt.Printf("%+v\n", v)
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// contentFromArgsOrStdin joins positional args, falling back to piped
// stdin so `echo fact | mnemo remember` works.
func contentFromArgsOrStdin(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	return "", nil
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "init",
		Short:   "Write a default config file",
		Example: "  mnemo init",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config already exists at %s", configPath)
			}
			if err := config.SaveConfig(configPath, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Println("wrote " + configPath)
			return nil
		},
	}
}

func newAddCommand() *cobra.Command {
	var (
		session    string
		kind       string
		importance float64
		tags       string
		toolCall   string
		human      bool
	)
	cmd := &cobra.Command{
		Use:     "add [content]",
		Short:   "Add an item to a session's working memory",
		Example: "  mnemo add --session s1 --kind user \"deploy the staging branch\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := contentFromArgsOrStdin(args)
			if err != nil {
				return err
			}
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			item, err := eng.Memory().AddItem(cmd.Context(), session, memory.Kind(kind), content, memory.ItemMetadata{
				Importance:       importance,
				Tags:             splitTags(tags),
				ToolCall:         toolCall,
				HumanInteraction: human,
			})
			if err != nil {
				return err
			}
			printJSON(item)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "default", "Session id")
	cmd.Flags().StringVarP(&kind, "kind", "k", "user", "Item kind: user, assistant, system, tool, observation, human, reasoning")
	cmd.Flags().Float64Var(&importance, "importance", 0, "Explicit importance in [0,1]; 0 means auto-score")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "Comma-separated tags")
	cmd.Flags().StringVar(&toolCall, "tool", "", "Tool call name")
	cmd.Flags().BoolVar(&human, "human", false, "Mark as a human interaction")
	return cmd
}

func newItemsCommand() *cobra.Command {
	var (
		session string
		kind    string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List a session's live working-memory items",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			opts := memory.GetOptions{Limit: limit}
			if kind != "" {
				opts.Kinds = []memory.Kind{memory.Kind(kind)}
			}
			items, err := eng.Memory().GetItems(cmd.Context(), session, opts)
			if err != nil {
				return err
			}
			printJSON(items)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "default", "Session id")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by kind")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Keep only the most recent N items")
	return cmd
}

func newContextCommand() *cobra.Command {
	var (
		session  string
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Render a buffer's view of a session's stored items",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := buffer.Type(strategy)
			if !t.Valid() {
				return fmt.Errorf("unknown buffer strategy %q", strategy)
			}
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			items, err := eng.Memory().GetItems(cmd.Context(), session, memory.GetOptions{})
			if err != nil {
				return err
			}
			// Buffers are in-process state; replay the persisted items
			// through a fresh one rather than mutating the session.
			buf, err := buffer.New(t, buffer.Config{})
			if err != nil {
				return err
			}
			for _, it := range items {
				if err := buf.Add(bufferMessage(it)); err != nil {
					return err
				}
			}
			fmt.Println(buf.Context())
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "default", "Session id")
	cmd.Flags().StringVar(&strategy, "strategy", "window", "Buffer strategy: window, summary, conversation, working, episodic")
	return cmd
}

func bufferMessage(it memory.Item) buffer.Message {
	return buffer.Message{
		Role:      string(it.Kind),
		Content:   it.Content,
		Timestamp: it.Timestamp,
		Metadata: buffer.Metadata{
			Importance:  it.Metadata.Importance,
			Tags:        it.Metadata.Tags,
			CurrentStep: it.Metadata.CurrentStep,
			Reasoning:   it.Metadata.Reasoning,
			ToolCall:    it.Metadata.ToolCall,
			Variables:   it.Metadata.Variables,
		},
	}
}

func newStateCommand() *cobra.Command {
	var (
		session string
		form    bool
	)
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Read or mutate a session's runtime state",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			state, err := getState(cmd, eng, session, form)
			if err != nil {
				return err
			}
			printJSON(state)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&session, "session", "s", "default", "Session id")
	cmd.PersistentFlags().BoolVar(&form, "form", false, "Operate on form data instead of runtime state")

	apply := &cobra.Command{
		Use:     "apply [ops-json]",
		Short:   "Apply state operations from a JSON array",
		Example: `  mnemo state apply '[{"key":"step","op":"set","value":"review"}]'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ops []memory.StateOp
			if err := json.Unmarshal([]byte(args[0]), &ops); err != nil {
				return fmt.Errorf("parse ops: %w", err)
			}
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			state, err := applyState(cmd, eng, session, form, ops)
			if err != nil {
				return err
			}
			printJSON(state)
			return nil
		},
	}
	cmd.AddCommand(apply)
	return cmd
}

func getState(cmd *cobra.Command, eng *engine.Engine, session string, form bool) (map[string]any, error) {
	if form {
		return eng.Memory().GetFormData(cmd.Context(), session)
	}
	return eng.Memory().GetRuntimeState(cmd.Context(), session)
}

func applyState(cmd *cobra.Command, eng *engine.Engine, session string, form bool, ops []memory.StateOp) (map[string]any, error) {
	if form {
		return eng.Memory().UpdateFormData(cmd.Context(), session, ops)
	}
	return eng.Memory().UpdateRuntimeState(cmd.Context(), session, ops)
}

func newSummarizeCommand() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Produce the statistical digest of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			sum, err := eng.Memory().Summarize(cmd.Context(), session)
			if err != nil {
				return err
			}
			printJSON(sum)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "default", "Session id")
	return cmd
}

func newConsolidateCommand() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Promote important working-memory items into long-term memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			res, err := eng.Consolidate(cmd.Context(), session)
			if err != nil {
				return err
			}
			if res.MemoriesCreated > 0 {
				if err := saveSnapshot(cmd, eng); err != nil {
					return err
				}
			}
			printJSON(res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "default", "Session id")
	return cmd
}

func newRememberCommand() *cobra.Command {
	var (
		memType    string
		importance float64
		tags       string
		session    string
	)
	cmd := &cobra.Command{
		Use:     "remember [content]",
		Short:   "Store one long-term memory directly",
		Example: "  mnemo remember --type preference \"user prefers terse answers\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := contentFromArgsOrStdin(args)
			if err != nil {
				return err
			}
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			rec, err := eng.Store(cmd.Context(), content, vector.Metadata{
				Type:       vector.MemoryType(memType),
				Importance: importance,
				SessionID:  session,
				Tags:       splitTags(tags),
			})
			if err != nil {
				return err
			}
			if err := saveSnapshot(cmd, eng); err != nil {
				return err
			}
			rec.Vector = nil // noise in terminal output
			printJSON(rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&memType, "type", "fact", "Memory type: fact, experience, preference, context, skill")
	cmd.Flags().Float64Var(&importance, "importance", 0.8, "Importance in [0,1]")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "Comma-separated tags")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Originating session id")
	return cmd
}

func newRecallCommand() *cobra.Command {
	var (
		limit    int
		minScore float64
		memType  string
	)
	cmd := &cobra.Command{
		Use:     "recall [query]",
		Short:   "Semantic search over long-term memory",
		Args:    cobra.MinimumNArgs(1),
		Example: "  mnemo recall --limit 5 \"how do we deploy\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			opts := engine.RetrieveOptions{Limit: limit, MinScore: minScore}
			if memType != "" {
				opts.Filter = vector.Filter{"type": memType}
			}
			results, err := eng.Retrieve(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			for i := range results {
				results[i].Record.Vector = nil
			}
			printJSON(results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Max results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum similarity score in [0,1]")
	cmd.Flags().StringVar(&memType, "type", "", "Filter by memory type")
	return cmd
}

func newForgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget [id...]",
		Short: "Delete long-term memories by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := eng.Delete(cmd.Context(), args...); err != nil {
				return err
			}
			if err := saveSnapshot(cmd, eng); err != nil {
				return err
			}
			fmt.Printf("deleted %d\n", len(args))
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show long-term store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			stats, err := eng.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(stats)
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export long-term memory as JSONL (stdout if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			var w io.Writer = os.Stdout
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := eng.Export(cmd.Context(), w)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				fmt.Printf("exported %d records\n", n)
			}
			return nil
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import a JSONL export into long-term memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := eng.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := saveSnapshot(cmd, eng); err != nil {
				return err
			}
			fmt.Printf("imported %d records\n", n)
			return nil
		},
	}
}

func newClearCommand() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear a session's working memory and state",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := eng.Memory().ClearSession(cmd.Context(), session); err != nil {
				return err
			}
			fmt.Println("cleared " + session)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "default", "Session id")
	return cmd
}
