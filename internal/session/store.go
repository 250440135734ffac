// Package session stores per-conversation history as JSONL files.
//
// File format:
//
//	Line 1:  {"_type":"metadata","key":"…","created_at":"…"}
//	Line 2+: one JSON turn object per line
//
// Turns are append-only.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// Store appends and reads conversation turns.
type Store struct {
	dir    string
	locks  sync.Map // key → *sync.Mutex
	logger *zap.Logger
}

// NewStore creates a Store rooted at dir, creating it if necessary.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger.Named("session")}, nil
}

type metadataLine struct {
	Type      string `json:"_type"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

func (s *Store) lock(key string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Append writes one turn to the end of the conversation's file.
func (s *Store) Append(ctx context.Context, conversationID string, turn schema.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := s.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	path := s.sessionPath(conversationID)
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if fresh {
		meta := metadataLine{
			Type:      "metadata",
			Key:       conversationID,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	if err := enc.Encode(turn); err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session %s: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write session %s: %w", path, err)
	}
	return f.Close()
}

// Recent returns up to limit of the conversation's latest turns, oldest
// first. An unknown conversation has no turns. limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]schema.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu := s.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(s.sessionPath(conversationID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer f.Close()

	var turns []schema.Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20) // 1 MB per line
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || bytes.Contains(line, []byte(`"_type":"metadata"`)) {
			continue
		}
		var t schema.Turn
		if err := json.Unmarshal(line, &t); err != nil {
			s.logger.Warn("skipping malformed session line", zap.String("key", conversationID), zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Info summarises one stored conversation.
type Info struct {
	Key       string
	CreatedAt string
	UpdatedAt time.Time
	Path      string
}

// List returns every stored conversation, newest first.
func (s *Store) List() []Info {
	entries, _ := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	var out []Info

	for _, path := range entries {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		info := Info{
			Key:       strings.TrimSuffix(filepath.Base(path), ".jsonl"),
			UpdatedAt: st.ModTime(),
			Path:      path,
		}
		if f, err := os.Open(path); err == nil {
			scanner := bufio.NewScanner(f)
			if scanner.Scan() {
				var meta metadataLine
				if json.Unmarshal(scanner.Bytes(), &meta) == nil && meta.Type == "metadata" {
					info.Key = meta.Key
					info.CreatedAt = meta.CreatedAt
				}
			}
			f.Close()
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// sessionPath converts a conversation key to its JSONL file path.
func (s *Store) sessionPath(key string) string {
	name := safeFilename(strings.ReplaceAll(key, ":", "_"))
	return filepath.Join(s.dir, name+".jsonl")
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) || r == '.' && b.Len() == 0 {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
