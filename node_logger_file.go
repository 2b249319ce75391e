package callflow

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileNodeLogger is an implementation of NodeLogger that logs to a file.
// A file is created per execution. The file is formatted as newline-delimited JSON.
type FileNodeLogger struct {
	directory string
}

func NewFileNodeLogger(directory string) *FileNodeLogger {
	return &FileNodeLogger{directory: directory}
}

func (l *FileNodeLogger) executionLogPath(executionID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", executionID))
}

func (l *FileNodeLogger) GetNodeHistory(ctx context.Context, executionID string) ([]*NodeLogEntry, error) {
	f, err := os.Open(l.executionLogPath(executionID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []*NodeLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry NodeLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, scanner.Err()
}

func (l *FileNodeLogger) LogNode(ctx context.Context, entry *NodeLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := l.executionLogPath(entry.ExecutionID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}
