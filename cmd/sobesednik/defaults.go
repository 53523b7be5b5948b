package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Completion endpoint.
	viper.SetDefault("llm.endpoint", "https://api.openai.com")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.max_tokens", 700)
	viper.SetDefault("llm.request_timeout", 90*time.Second)

	// Speech to text.
	viper.SetDefault("stt.model", "whisper-1")

	// Conversation behavior.
	viper.SetDefault("chat.system_prompt", "You are a helpful assistant. Keep answers concise.")
	viper.SetDefault("chat.use_context_default", true)

	// History store.
	viper.SetDefault("history.db_path", "data/history.db")
	viper.SetDefault("history.max_messages", 12)

	// Telegram.
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.task_timeout", 2*time.Minute)
	viper.SetDefault("telegram.max_concurrency", 3)
	viper.SetDefault("telegram.allowed_chat_ids", []string{})

	// Voice file cache.
	viper.SetDefault("file_cache_dir", "data/cache")
	viper.SetDefault("file_cache.max_age", 24*time.Hour)
	viper.SetDefault("file_cache.max_files", 200)
	viper.SetDefault("file_cache.max_total_bytes", int64(256*1024*1024))
	viper.SetDefault("file_cache.max_voice_bytes", int64(20*1024*1024))

	// Logging
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("verbose", false)
}
