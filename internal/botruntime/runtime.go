// Package botruntime runs the Telegram side of the relay: long-polling for
// updates, dispatching commands, serializing work per chat and delivering
// replies.
package botruntime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sobesednik/sobesednik/internal/audio"
	"github.com/sobesednik/sobesednik/internal/cacheutil"
	"github.com/sobesednik/sobesednik/internal/handler"
)

type job struct {
	ChatID      int64
	MessageID   int64
	FromUserID  int64
	Text        string
	VoiceFileID string
	Version     uint64
}

type chatWorker struct {
	Jobs    chan job
	Version uint64
}

type Options struct {
	Token          string
	BaseURL        string
	PollTimeout    time.Duration
	TaskTimeout    time.Duration
	MaxConcurrency int
	AllowedChatIDs map[int64]bool

	CacheDir      string
	CachePolicy   cacheutil.Policy
	MaxVoiceBytes int64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Runtime struct {
	api     *botAPI
	handler *handler.Handler
	opts    Options
	logger  *slog.Logger

	sem chan struct{}

	mu      sync.Mutex
	workers map[int64]*chatWorker
}

func New(h *handler.Handler, opts Options) (*Runtime, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 2 * time.Minute
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 3
	}
	if opts.MaxVoiceBytes <= 0 {
		opts.MaxVoiceBytes = 20 * 1024 * 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(opts.CacheDir) != "" {
		if err := cacheutil.EnsureDir(opts.CacheDir); err != nil {
			return nil, fmt.Errorf("voice cache dir: %w", err)
		}
		if err := cacheutil.Prune(opts.CacheDir, opts.CachePolicy); err != nil {
			logger.Warn("voice cache cleanup failed", "error", err)
		}
	}
	return &Runtime{
		api:     newBotAPI(opts.HTTPClient, opts.BaseURL, opts.Token),
		handler: h,
		opts:    opts,
		logger:  logger,
		sem:     make(chan struct{}, opts.MaxConcurrency),
		workers: make(map[int64]*chatWorker),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	me, err := r.api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	r.logger.Info("telegram_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", r.opts.PollTimeout.String(),
		"task_timeout", r.opts.TaskTimeout.String(),
		"max_concurrency", r.opts.MaxConcurrency,
	)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, next, err := r.api.getUpdates(ctx, offset, r.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isPollTimeoutError(err) {
				r.logger.Warn("telegram poll failed", "error", err)
				time.Sleep(2 * time.Second)
			}
			continue
		}
		offset = next

		for _, u := range updates {
			r.dispatch(ctx, u)
		}
	}
}

func (r *Runtime) allowed(chatID int64) bool {
	if len(r.opts.AllowedChatIDs) == 0 {
		return true
	}
	return r.opts.AllowedChatIDs[chatID]
}

func (r *Runtime) dispatch(ctx context.Context, u update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}
	chatID := msg.Chat.ID
	if !r.allowed(chatID) {
		r.logger.Debug("rejecting update from disallowed chat", "chat_id", chatID)
		r.reply(ctx, chatID, msg.MessageID, "Sorry, this bot is not available in this chat.")
		return
	}

	userID := chatID
	if msg.From != nil {
		userID = msg.From.ID
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	if strings.HasPrefix(text, "/") {
		r.handleCommand(ctx, msg, userID, text)
		return
	}

	j := job{
		ChatID:     chatID,
		MessageID:  msg.MessageID,
		FromUserID: userID,
		Text:       text,
	}
	switch {
	case msg.Voice != nil:
		j.VoiceFileID = msg.Voice.FileID
	case msg.Audio != nil:
		j.VoiceFileID = msg.Audio.FileID
	case text == "":
		// Stickers, photos and other payloads the relay does not handle.
		r.reply(ctx, chatID, msg.MessageID, "I can only handle text and voice messages.")
		return
	}

	r.mu.Lock()
	w := r.getOrStartWorkerLocked(ctx, chatID)
	j.Version = w.Version
	r.mu.Unlock()

	select {
	case w.Jobs <- j:
	default:
		r.logger.Warn("chat queue full, dropping message", "chat_id", chatID)
		r.reply(ctx, chatID, msg.MessageID, "I'm overloaded right now, please try again in a moment.")
	}
}

func (r *Runtime) handleCommand(ctx context.Context, msg *message, userID int64, text string) {
	chatID := msg.Chat.ID
	cmdWord, _ := splitCommand(text)
	switch normalizeSlashCommand(cmdWord) {
	case "/start", "/help":
		r.reply(ctx, chatID, msg.MessageID, r.handler.Greeting())
	case "/id":
		r.reply(ctx, chatID, msg.MessageID, fmt.Sprintf("chat_id: %d", chatID))
	case "/reset":
		n, err := r.handler.Reset(ctx, userID)
		if err != nil {
			r.logger.Error("reset failed", "user_id", userID, "error", err)
			r.reply(ctx, chatID, msg.MessageID, "Sorry, I could not reset the conversation.")
			return
		}
		r.mu.Lock()
		if w, ok := r.workers[chatID]; ok {
			// Jobs queued before the reset carry the old version and
			// are dropped by the worker.
			w.Version++
		}
		r.mu.Unlock()
		if n == 0 {
			r.reply(ctx, chatID, msg.MessageID, "Nothing to reset, the conversation was already empty.")
		} else {
			r.reply(ctx, chatID, msg.MessageID, "Conversation reset.")
		}
	case "/ctx":
		enabled, err := r.handler.ToggleContext(ctx, userID)
		if err != nil {
			r.logger.Error("context toggle failed", "user_id", userID, "error", err)
			r.reply(ctx, chatID, msg.MessageID, "Sorry, I could not change the context setting.")
			return
		}
		if enabled {
			r.reply(ctx, chatID, msg.MessageID, "Context is on: I will remember our conversation.")
		} else {
			r.reply(ctx, chatID, msg.MessageID, "Context is off: I will answer each message on its own.")
		}
	default:
		r.reply(ctx, chatID, msg.MessageID, "Unknown command. Try /start, /reset or /ctx.")
	}
}

func (r *Runtime) getOrStartWorkerLocked(ctx context.Context, chatID int64) *chatWorker {
	if w, ok := r.workers[chatID]; ok && w != nil {
		return w
	}
	w := &chatWorker{Jobs: make(chan job, 16)}
	r.workers[chatID] = w

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case j, ok := <-w.Jobs:
				if !ok {
					return
				}
				select {
				case r.sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				func() {
					defer func() { <-r.sem }()
					r.process(ctx, w, j)
				}()
			}
		}
	}()
	return w
}

func (r *Runtime) process(ctx context.Context, w *chatWorker, j job) {
	r.mu.Lock()
	stale := j.Version != w.Version
	r.mu.Unlock()
	if stale {
		r.logger.Debug("dropping stale job after reset", "chat_id", j.ChatID)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
	defer cancel()

	if j.VoiceFileID != "" {
		r.processVoice(taskCtx, j)
		return
	}

	stopTyping := startChatActionTicker(ctx, r.api, j.ChatID, "typing", 4*time.Second)
	reply, err := r.handler.HandleText(taskCtx, j.FromUserID, j.Text)
	stopTyping()
	if err != nil {
		r.logger.Error("text exchange failed", "chat_id", j.ChatID, "user_id", j.FromUserID, "error", err)
		r.reply(ctx, j.ChatID, j.MessageID, "Sorry, something went wrong while answering. Please try again.")
		return
	}
	r.reply(ctx, j.ChatID, j.MessageID, reply)
}

func (r *Runtime) processVoice(ctx context.Context, j job) {
	stopTyping := startChatActionTicker(ctx, r.api, j.ChatID, "typing", 4*time.Second)
	defer stopTyping()

	audioPath, cleanup, err := r.fetchVoice(ctx, j.VoiceFileID)
	if err != nil {
		r.logger.Error("voice download failed", "chat_id", j.ChatID, "error", err)
		r.reply(ctx, j.ChatID, j.MessageID, "Sorry, I could not fetch that voice message.")
		return
	}
	defer cleanup()

	recognized, reply, err := r.handler.HandleVoice(ctx, j.FromUserID, audioPath)
	if err != nil {
		r.logger.Error("voice exchange failed", "chat_id", j.ChatID, "user_id", j.FromUserID, "error", err)
		r.reply(ctx, j.ChatID, j.MessageID, "Sorry, I could not process that voice message. Please try again.")
		return
	}
	r.reply(ctx, j.ChatID, j.MessageID, "You said: "+recognized)
	r.reply(ctx, j.ChatID, 0, reply)
}

// fetchVoice downloads the voice note into the cache dir and transcodes it
// to mp3. When ffmpeg is unavailable or fails the original download is
// used as-is.
func (r *Runtime) fetchVoice(ctx context.Context, fileID string) (string, func(), error) {
	dir := r.opts.CacheDir
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}

	info, err := r.api.getFile(ctx, fileID)
	if err != nil {
		return "", nil, err
	}
	ext := filepath.Ext(info.FilePath)
	if ext == "" {
		ext = ".oga"
	}
	name := uuid.NewString()
	srcPath := filepath.Join(dir, name+ext)
	if _, _, err := r.api.downloadFileTo(ctx, info.FilePath, srcPath, r.opts.MaxVoiceBytes); err != nil {
		_ = os.Remove(srcPath)
		return "", nil, err
	}

	dstPath := filepath.Join(dir, name+".mp3")
	if err := audio.Convert(ctx, srcPath, dstPath); err != nil {
		r.logger.Warn("audio conversion failed, using original file", "error", err)
		return srcPath, func() { _ = os.Remove(srcPath) }, nil
	}
	return dstPath, func() {
		_ = os.Remove(srcPath)
		_ = os.Remove(dstPath)
	}, nil
}

func (r *Runtime) reply(ctx context.Context, chatID, replyToMessageID int64, text string) {
	if err := r.api.sendMessageChunkedReply(ctx, chatID, text, replyToMessageID); err != nil {
		r.logger.Warn("failed to send reply", "chat_id", chatID, "error", err)
	}
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	// Allow "/cmd@BotName" variants by stripping "@...".
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
