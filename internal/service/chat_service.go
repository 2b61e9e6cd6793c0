package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/model"
	"tg-gemini-go/internal/repository"
	"tg-gemini-go/pkg/gemini"
	"tg-gemini-go/pkg/log"

	"github.com/google/uuid"
)

// 附件大小上限。超限的消息被拒绝并终止流程，不触碰历史。
const (
	maxPhotoBytes    = 8 * 1024 * 1024
	maxDocumentBytes = 10 * 1024 * 1024
)

// 附件种类。
const (
	AttachmentPhoto    = "photo"
	AttachmentDocument = "document"
)

// Attachment 是入站传输层交给编排器的附件描述，
// 字节内容通过 Fetch 惰性拉取。
type Attachment struct {
	Kind     string
	MIMEType string
	Size     int64
	Fetch    func(ctx context.Context) ([]byte, error)
}

// IncomingMessage 是规范化后的入站消息事件。
type IncomingMessage struct {
	UserID      int64
	Text        string
	Caption     string
	Attachments []Attachment
}

// Sender 是编排器依赖的出站传输接口，由 Telegram 客户端实现。
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// ChatService 定义了单条入站消息的完整处理流程。
type ChatService interface {
	// HandleMessage 驱动一条消息走完 组装→增强→生成→持久化→投递 的状态机。
	// 所有失败都在此边界内消化，绝不向上传播。
	HandleMessage(ctx context.Context, msg IncomingMessage)
}

type chatService struct {
	searchService SearchService
	replyService  ReplyService
	historyRepo   repository.HistoryRepository
	sender        Sender
	prompt        config.GeminiPromptConfig
	chunkLimit    int
	chunkDelay    time.Duration

	// 按用户标识的互斥锁：同一用户的并发消息串行处理，
	// 避免历史的读-改-写竞争。不同用户互不阻塞。
	userLocks sync.Map // key: int64, value: *sync.Mutex
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	searchService SearchService,
	replyService ReplyService,
	historyRepo repository.HistoryRepository,
	sender Sender,
	tg config.TelegramConfig,
	prompt config.GeminiPromptConfig,
) ChatService {
	chunkLimit := tg.ChunkLimit
	if chunkLimit <= 0 {
		chunkLimit = 4090
	}
	return &chatService{
		searchService: searchService,
		replyService:  replyService,
		historyRepo:   historyRepo,
		sender:        sender,
		prompt:        prompt,
		chunkLimit:    chunkLimit,
		chunkDelay:    time.Duration(tg.ChunkDelayMs) * time.Millisecond,
	}
}

// HandleMessage 处理一条入站消息。
func (s *chatService) HandleMessage(ctx context.Context, msg IncomingMessage) {
	logger := log.With("request_id", uuid.NewString(), "user_id", msg.UserID)

	// 显式命令绕过对话状态机
	if cmd := command(msg.Text); cmd != "" {
		s.handleCommand(ctx, msg.UserID, cmd)
		return
	}

	lock := s.lockFor(msg.UserID)
	lock.Lock()
	defer lock.Unlock()

	// Assembling：构建用户轮，附件超限则直接拒绝
	userTurn, rejection, err := s.assembleTurn(ctx, msg)
	if err != nil {
		logger.Warnf("组装消息失败: %v", err)
		s.send(ctx, msg.UserID, s.prompt.FailureText)
		return
	}
	if rejection != "" {
		s.send(ctx, msg.UserID, rejection)
		return
	}

	if err := s.sender.SendChatAction(ctx, msg.UserID, "typing"); err != nil {
		logger.Warnf("发送 typing 状态失败: %v", err)
	}

	base, err := s.historyRepo.Get(ctx, msg.UserID)
	baseKnown := err == nil
	if err != nil {
		// 读失败按空历史继续：本轮对话质量降级，但服务不中断
		logger.Warnf("读取历史失败，按空历史继续: %v", err)
		base = []model.Turn{}
	}

	// Augmenting：可选的外部检索，结果作为额外上下文轮注入
	working := append([]model.Turn{}, base...)
	query := searchQuery(msg)
	if s.searchService.ShouldAugment(ctx, query) {
		if result := s.searchService.Search(ctx, query); result != "" {
			working = append(working, model.TextTurn(model.RoleModel, "Свежие данные:\n"+result))
			logger.Infow("已注入检索上下文", "query", query)
		}
	}

	// Generating：追加用户轮并调用生成
	working = append(working, userTurn)
	reply, err := s.replyService.Generate(ctx, working)
	if err != nil {
		// ErrorRecovery：回滚到本轮之前的历史并持久化，发送固定失败文案。
		// 读取历史失败时 base 并非存储里的真实状态，写回会把它清空，此时跳过回滚写
		logger.Errorf("生成失败，回滚本轮历史: %v", err)
		if baseKnown {
			if saveErr := s.historyRepo.Save(ctx, msg.UserID, base); saveErr != nil {
				logger.Errorf("持久化回滚历史失败: %v", saveErr)
			}
		}
		s.send(ctx, msg.UserID, s.failureText(err))
		return
	}
	if strings.TrimSpace(reply) == "" {
		reply = s.prompt.EmptyReplyText
	}

	// Persisting：追加模型轮并落库；失败只记录，不阻塞投递
	working = append(working, model.TextTurn(model.RoleModel, reply))
	if err := s.historyRepo.Save(ctx, msg.UserID, working); err != nil {
		logger.Errorf("持久化历史失败，本轮历史未落盘: %v", err)
	}

	// Delivering：按传输层上限分块投递
	s.deliver(ctx, msg.UserID, reply)
}

// handleCommand 处理 /start 与 /clear：清空历史并发送固定文案。
// 同样持有按用户互斥锁，避免清空被同一用户在途消息的后续 Save 覆盖。
func (s *chatService) handleCommand(ctx context.Context, userID int64, cmd string) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.historyRepo.Clear(ctx, userID); err != nil {
		log.Errorf("清空历史失败 user_id=%d: %v", userID, err)
	}
	switch cmd {
	case "start":
		s.send(ctx, userID, s.prompt.Greeting)
	case "clear":
		s.send(ctx, userID, s.prompt.ClearedText)
	}
}

// assembleTurn 把文本与附件组装为一个用户轮。
// 返回的 rejection 非空表示输入被拒绝（附件超限），流程应终止且不触碰历史。
func (s *chatService) assembleTurn(ctx context.Context, msg IncomingMessage) (model.Turn, string, error) {
	turn := model.Turn{Role: model.RoleUser}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text != "" {
		turn.Parts = append(turn.Parts, model.TextPart(text))
	}

	for _, att := range msg.Attachments {
		switch att.Kind {
		case AttachmentPhoto:
			if att.Size > maxPhotoBytes {
				return model.Turn{}, s.prompt.PhotoTooBig, nil
			}
		case AttachmentDocument:
			if att.Size > maxDocumentBytes {
				return model.Turn{}, s.prompt.DocTooBig, nil
			}
		}

		data, err := att.Fetch(ctx)
		if err != nil {
			return model.Turn{}, "", err
		}
		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		turn.Parts = append(turn.Parts, model.BlobPart(mimeType, data))
	}

	// 空提交规范化为单个空文本项
	turn.Normalize()
	return turn, "", nil
}

// failureText 为终态生成失败挑选用户可见文案。
func (s *chatService) failureText(err error) string {
	if errors.Is(err, gemini.ErrBlocked) {
		return s.prompt.BlockedText
	}
	return s.prompt.FailureText
}

// deliver 把回复按上限分块、按序发送，多于一块时在块间做短暂停顿。
func (s *chatService) deliver(ctx context.Context, userID int64, reply string) {
	chunks := SplitChunks(reply, s.chunkLimit)
	for i, chunk := range chunks {
		if i > 0 && s.chunkDelay > 0 {
			select {
			case <-time.After(s.chunkDelay):
			case <-ctx.Done():
				return
			}
		}
		if err := s.sender.SendMessage(ctx, userID, chunk); err != nil {
			log.Errorf("投递回复分块失败 user_id=%d chunk=%d: %v", userID, i, err)
			return
		}
	}
}

func (s *chatService) send(ctx context.Context, userID int64, text string) {
	if err := s.sender.SendMessage(ctx, userID, text); err != nil {
		log.Errorf("发送消息失败 user_id=%d: %v", userID, err)
	}
}

func (s *chatService) lockFor(userID int64) *sync.Mutex {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// command 解析显式命令。"/start" 与 "/clear"（含 @botname 后缀）之外返回空串。
func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	switch cmd {
	case "start", "clear":
		return cmd
	}
	return ""
}

// searchQuery 取检索判定用的查询文本：正文/说明文字，
// 纯附件消息用占位词代替。
func searchQuery(msg IncomingMessage) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text != "" {
		return text
	}
	for _, att := range msg.Attachments {
		if att.Kind == AttachmentPhoto {
			return "фото"
		}
	}
	if len(msg.Attachments) > 0 {
		return "документ"
	}
	return ""
}

// SplitChunks 把文本按 limit 个 rune 分块，保持原始顺序，拼接后与原文相等。
func SplitChunks(text string, limit int) []string {
	if limit <= 0 || text == "" {
		return []string{text}
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
