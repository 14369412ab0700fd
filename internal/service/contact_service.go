package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/storage"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// ErrContactInvalidInput 在表单字段缺失或格式错误时返回
	ErrContactInvalidInput = errors.New("invalid contact input")
	// ErrContactIndexOutOfRange 在按位置操作的下标越界时返回
	ErrContactIndexOutOfRange = errors.New("contact index out of range")
	// ErrContactInvalidStatus 在状态值不合法时返回
	ErrContactInvalidStatus = errors.New("invalid contact status")
)

const (
	defaultContactSubject = "General Inquiry"
	maxContactNameLength  = 100
	maxContactEmailLength = 254
	maxContactSubjLength  = 200
	maxContactMsgLength   = 5000
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidationError 描述具体的校验失败字段，errors.Is 可匹配 ErrContactInvalidInput。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrContactInvalidInput
}

// ContactInput 是联系表单提交的原始字段。
type ContactInput struct {
	Name    string
	Email   string
	Subject string
	Message string
	IP      string
}

// ContactNotifier 在新留言保存成功后被调用。
type ContactNotifier interface {
	NotifyContact(ctx context.Context, message db.ContactMessage) error
}

// ContactService 负责维护联系留言日志，留言没有容量上限。
type ContactService struct {
	mu       sync.Mutex
	log      storage.Log[db.ContactMessage]
	policy   *bluemonday.Policy
	notifier ContactNotifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewContactService 构造 ContactService
func NewContactService(log storage.Log[db.ContactMessage], logger *slog.Logger) *ContactService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContactService{
		log:    log,
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
		logger: logger,
	}
}

// WithNotifier 设置新留言通知，nil 表示不通知。
func (s *ContactService) WithNotifier(notifier ContactNotifier) *ContactService {
	s.notifier = notifier
	return s
}

// WithClock 替换时钟。
func (s *ContactService) WithClock(now func() time.Time) *ContactService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *ContactService) load() ([]db.ContactMessage, error) {
	items, err := s.log.Load()
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			s.logger.Warn("[ContactService] Corrupt contact log, treating as empty", "error", err)
			return []db.ContactMessage{}, nil
		}
		return nil, err
	}
	return items, nil
}

func (s *ContactService) sanitize(value string, limit int) string {
	value = truncateRunes(strings.TrimSpace(value), limit)
	return strings.TrimSpace(s.policy.Sanitize(value))
}

func (s *ContactService) normalizeInput(input ContactInput) (db.ContactMessage, error) {
	message := db.ContactMessage{
		Name:    s.sanitize(input.Name, maxContactNameLength),
		Email:   strings.TrimSpace(input.Email),
		Subject: s.sanitize(input.Subject, maxContactSubjLength),
		Message: s.sanitize(input.Message, maxContactMsgLength),
		IP:      strings.TrimSpace(input.IP),
		Status:  db.ContactStatusNew,
	}

	switch {
	case message.Name == "":
		return message, &ValidationError{Field: "name", Reason: "is required"}
	case message.Email == "":
		return message, &ValidationError{Field: "email", Reason: "is required"}
	case message.Message == "":
		return message, &ValidationError{Field: "message", Reason: "is required"}
	case len(message.Email) > maxContactEmailLength || !emailPattern.MatchString(message.Email):
		return message, &ValidationError{Field: "email", Reason: "is not a valid address"}
	}

	if message.Subject == "" {
		message.Subject = defaultContactSubject
	}
	return message, nil
}

// Submit 校验并追加一条留言。
func (s *ContactService) Submit(ctx context.Context, input ContactInput) (*db.ContactMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	message, err := s.normalizeInput(input)
	if err != nil {
		return nil, err
	}
	message.Timestamp = s.now().UTC()

	s.mu.Lock()
	items, err := s.load()
	if err == nil {
		items = append(items, message)
		err = s.log.Replace(items)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("submit contact: %w", err)
	}

	if s.notifier != nil {
		// 通知不影响提交结果
		go func(msg db.ContactMessage) {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.notifier.NotifyContact(notifyCtx, msg); err != nil {
				s.logger.Warn("[ContactService] Contact notification failed", "error", err)
			}
		}(message)
	}

	return &message, nil
}

// List 返回按提交顺序排列的全部留言。
func (s *ContactService) List(ctx context.Context) ([]db.ContactMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return items, nil
}

// Delete 删除指定位置的留言，之后的留言位置依次前移。
func (s *ContactService) Delete(ctx context.Context, index int) error {
	return s.mutateAt(ctx, "delete contact", index, func(items []db.ContactMessage) ([]db.ContactMessage, error) {
		return append(items[:index], items[index+1:]...), nil
	})
}

// UpdateStatus 修改指定位置留言的状态。
func (s *ContactService) UpdateStatus(ctx context.Context, index int, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if !db.ValidContactStatus(status) {
		return ErrContactInvalidStatus
	}
	return s.mutateAt(ctx, "update contact status", index, func(items []db.ContactMessage) ([]db.ContactMessage, error) {
		items[index].Status = status
		return items, nil
	})
}

func (s *ContactService) mutateAt(ctx context.Context, op string, index int, mutate func([]db.ContactMessage) ([]db.ContactMessage, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if index < 0 || index >= len(items) {
		return ErrContactIndexOutOfRange
	}

	updated, err := mutate(items)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.log.Replace(updated); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
