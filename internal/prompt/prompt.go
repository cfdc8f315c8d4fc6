package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrUnknownPolicy 未知的确认策略
var ErrUnknownPolicy = errors.New("unknown confirmation policy")

// 确认策略
const (
	PolicyAsk     = "ask"
	PolicyApprove = "approve"
	PolicyDeny    = "deny"
)

// Confirmer 操作确认，交互式终端与非交互策略可以互换
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Static 固定答复的确认器
type Static struct {
	Answer bool

	mu        sync.Mutex
	questions []string
}

// Always 返回总是给出同一答复的确认器
func Always(answer bool) *Static {
	return &Static{Answer: answer}
}

// Confirm 记录问题并返回固定答复
func (s *Static) Confirm(_ context.Context, question string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, question)
	return s.Answer, nil
}

// Questions 已询问过的问题
func (s *Static) Questions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.questions...)
}

// Console 终端 y/N 确认
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole 创建终端确认器
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Confirm 询问并读取一行，只有 y/yes 视为同意，输入结束视为拒绝
func (c *Console) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := fmt.Fprintf(c.out, "%s [y/N]: ", question); err != nil {
		return false, err
	}

	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// FromPolicy 根据策略名称创建确认器
func FromPolicy(policy string, in io.Reader, out io.Writer) (Confirmer, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case PolicyAsk, "":
		return NewConsole(in, out), nil
	case PolicyApprove:
		return Always(true), nil
	case PolicyDeny:
		return Always(false), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}
