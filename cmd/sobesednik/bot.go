package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sobesednik/sobesednik/internal/assemble"
	"github.com/sobesednik/sobesednik/internal/botruntime"
	"github.com/sobesednik/sobesednik/internal/cacheutil"
	"github.com/sobesednik/sobesednik/internal/handler"
	"github.com/sobesednik/sobesednik/internal/history"
	"github.com/sobesednik/sobesednik/internal/logutil"
	"github.com/sobesednik/sobesednik/providers/openai"
)

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram relay bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --bot-token or %s_TELEGRAM_BOT_TOKEN)", envPrefix)
			}

			allowed := make(map[int64]bool)
			for _, s := range viper.GetStringSlice("telegram.allowed_chat_ids") {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				id, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid telegram.allowed_chat_ids entry %q: %w", s, err)
				}
				allowed[id] = true
			}

			store, err := history.Open(viper.GetString("history.db_path"))
			if err != nil {
				return err
			}
			defer store.Close()

			oa := openai.New(
				viper.GetString("llm.endpoint"),
				viper.GetString("llm.api_key"),
				viper.GetDuration("llm.request_timeout"),
			)

			asm := assemble.New(store, assemble.Config{
				SystemPrompt:      viper.GetString("chat.system_prompt"),
				MaxMessages:       viper.GetInt("history.max_messages"),
				UseContextDefault: viper.GetBool("chat.use_context_default"),
			})

			h := handler.New(store, asm, oa, oa, handler.Options{
				Model:     viper.GetString("llm.model"),
				MaxTokens: viper.GetInt("llm.max_tokens"),
				STTModel:  viper.GetString("stt.model"),
				Logger:    logger,
			})

			rt, err := botruntime.New(h, botruntime.Options{
				Token:          token,
				PollTimeout:    viper.GetDuration("telegram.poll_timeout"),
				TaskTimeout:    viper.GetDuration("telegram.task_timeout"),
				MaxConcurrency: viper.GetInt("telegram.max_concurrency"),
				AllowedChatIDs: allowed,
				CacheDir:       viper.GetString("file_cache_dir"),
				CachePolicy: cacheutil.Policy{
					MaxAge:   viper.GetDuration("file_cache.max_age"),
					MaxFiles: viper.GetInt("file_cache.max_files"),
					MaxBytes: viper.GetInt64("file_cache.max_total_bytes"),
				},
				MaxVoiceBytes: viper.GetInt64("file_cache.max_voice_bytes"),
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info("telegram_stop")
			return nil
		},
	}

	cmd.Flags().String("bot-token", "", "Telegram bot token.")
	cmd.Flags().Duration("poll-timeout", 0, "Long-poll timeout for getUpdates.")
	cmd.Flags().Duration("task-timeout", 0, "Per-message processing timeout.")
	cmd.Flags().Int("max-concurrency", 0, "Max messages processed in parallel across chats.")
	cmd.Flags().StringArray("allowed-chat-id", nil, "Chat IDs allowed to talk to the bot (repeatable; empty allows all).")
	cmd.Flags().String("db-path", "", "Path to the SQLite history database.")
	cmd.Flags().String("file-cache-dir", "", "Directory for downloaded voice files.")

	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("bot-token"))
	_ = viper.BindPFlag("telegram.poll_timeout", cmd.Flags().Lookup("poll-timeout"))
	_ = viper.BindPFlag("telegram.task_timeout", cmd.Flags().Lookup("task-timeout"))
	_ = viper.BindPFlag("telegram.max_concurrency", cmd.Flags().Lookup("max-concurrency"))
	_ = viper.BindPFlag("telegram.allowed_chat_ids", cmd.Flags().Lookup("allowed-chat-id"))
	_ = viper.BindPFlag("history.db_path", cmd.Flags().Lookup("db-path"))
	_ = viper.BindPFlag("file_cache_dir", cmd.Flags().Lookup("file-cache-dir"))

	return cmd
}
