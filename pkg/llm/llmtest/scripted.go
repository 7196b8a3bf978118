// Package llmtest provides a scripted LLMProvider for tests.
package llmtest

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"ai-restaurant-search-be/pkg/llm"
)

var taskTag = regexp.MustCompile(`<task>([a-z_]+)</task>`)

// Reply is one scripted answer.
type Reply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// Scripted answers prompts by the <task> tag each prompt starts with. The
// last reply configured for a task repeats once earlier ones are consumed.
type Scripted struct {
	mu      sync.Mutex
	replies map[string][]Reply
	calls   map[string]int
}

var _ llm.LLMProvider = (*Scripted)(nil)

func New() *Scripted {
	return &Scripted{
		replies: make(map[string][]Reply),
		calls:   make(map[string]int),
	}
}

// On registers replies for task.
func (s *Scripted) On(task string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[task] = append(s.replies[task], replies...)
	return s
}

// JSON is shorthand for a successful textual reply.
func (s *Scripted) JSON(task, text string) *Scripted {
	return s.On(task, Reply{Text: text})
}

// Calls reports how many prompts for task were received.
func (s *Scripted) Calls(task string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

func (s *Scripted) next(task string) (Reply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[task]++
	queue := s.replies[task]
	if len(queue) == 0 {
		return Reply{}, false
	}
	r := queue[0]
	if len(queue) > 1 {
		s.replies[task] = queue[1:]
	}
	return r, true
}

func (s *Scripted) Generate(ctx context.Context, prompt string, _ ...llm.Option) (string, error) {
	task := "unknown"
	if m := taskTag.FindStringSubmatch(prompt); m != nil {
		task = m[1]
	}
	r, ok := s.next(task)
	if !ok {
		return "", fmt.Errorf("llmtest: no reply scripted for task %q", task)
	}
	if r.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.Delay):
		}
	}
	return r.Text, r.Err
}

func (s *Scripted) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("llmtest: empty history")
	}
	return s.Generate(ctx, history[len(history)-1].Content, opts...)
}
