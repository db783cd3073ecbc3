package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"nimbus-chat/relay/pkg/config"
	"nimbus-chat/relay/pkg/dispatch"
	"nimbus-chat/relay/pkg/providers"
	"nimbus-chat/relay/pkg/store"
)

var (
	chatSystem      string
	chatModel       string
	chatInteractive bool
	chatStatePath   string
	metricsListen   string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a chat message through the rotation engine",
	Long: `Streams a chat completion through the dispatch engine, rotating
credentials on classified failures exactly as the browser client does.

With --interactive, reads prompts from stdin in a loop, keeps the
conversation history, and reloads credentials when the config file changes
on disk. With --state, credential state (deactivations, rate limits) is
persisted across sessions.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup()
		if err != nil {
			return err
		}

		var st *store.Store
		if chatStatePath != "" {
			st, err = store.Open(chatStatePath)
			if err != nil {
				return err
			}
			defer st.Close()

			// A previously saved pool (with its deactivations) wins over
			// the raw config so broken keys stay retired across sessions.
			saved, err := st.Load()
			if err != nil {
				return err
			}
			if len(saved) > 0 {
				s.engine.UpdateCredentials(saved)
			}
			defer func() {
				if err := st.Save(s.engine.Credentials()); err != nil {
					fmt.Fprintln(os.Stderr, "failed to save credential state:", err)
				}
			}()
		}

		if s.registry != nil && metricsListen != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
				_ = http.ListenAndServe(metricsListen, mux)
			}()
		}

		if chatInteractive {
			return runInteractive(cmd.Context(), s)
		}

		if len(args) == 0 {
			return fmt.Errorf("message required (or use --interactive)")
		}
		_, err = sendOne(cmd.Context(), s.engine, nil, strings.Join(args, " "))
		return err
	},
}

// sendOne streams one generation call, printing deltas as they arrive, and
// returns the final text.
func sendOne(ctx context.Context, engine *dispatch.Engine, history []providers.Message, message string) (string, error) {
	printed := 0
	result, err := engine.StreamChatResponse(ctx, &dispatch.Request{
		History:           history,
		Message:           message,
		SystemInstruction: chatSystem,
		DefaultModel:      chatModel,
		Config: providers.GenerationConfig{
			StreamEnabled: true,
		},
	}, func(cumulative string) {
		// The engine reports cumulative text; print only the new suffix.
		if len(cumulative) > printed {
			fmt.Print(cumulative[printed:])
			printed = len(cumulative)
		}
	})
	if err != nil {
		return "", err
	}

	fmt.Printf("\n\n[credential #%d, %s, %s]\n", result.CredentialIndex, result.Provider, result.Model)
	return result.Text, nil
}

// runInteractive reads prompts from stdin, carrying the conversation
// forward and reloading credentials when the config file changes.
func runInteractive(ctx context.Context, s *session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher, err := config.NewWatcher(cfgFile, 0, nil)
	if err != nil {
		return err
	}
	go func() {
		_ = watcher.Watch(ctx, func(cfg *config.Config) {
			s.engine.UpdateCredentials(cfg.Entries())
		})
	}()

	var history []providers.Message
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("relay interactive chat (ctrl-d to exit)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}

		text, err := sendOne(ctx, s.engine, history, message)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}

		history = append(history,
			providers.Message{Role: providers.RoleUser, Content: message},
			providers.Message{Role: providers.RoleAssistant, Content: text},
		)
	}
}

func init() {
	chatCmd.Flags().StringVarP(&chatSystem, "system", "s", "", "system instruction")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "model override")
	chatCmd.Flags().BoolVarP(&chatInteractive, "interactive", "i", false, "interactive chat loop")
	chatCmd.Flags().StringVar(&chatStatePath, "state", "", "SQLite file persisting credential state")
	chatCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "address serving /metrics (requires metrics.enabled)")
	rootCmd.AddCommand(chatCmd)
}
