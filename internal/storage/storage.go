package storage

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Direction marks which way a recorded line travelled
type Direction byte

const (
	Inbound  Direction = '<'
	Outbound Direction = '>'
)

const dayLayout = "2006-01-02"

// Storage records wire traffic to daily files. The previous day's file is gzip
// compressed when the day rolls over.
type Storage struct {
	outputDir string
	now       func() time.Time

	mu   sync.Mutex
	file *os.File
	day  string

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Storage instance
func New(outputDir string) *Storage {
	return NewWithClock(outputDir, time.Now)
}

// NewWithClock creates a Storage that reads the time from now
func NewWithClock(outputDir string, now func() time.Time) *Storage {
	return &Storage{
		outputDir: outputDir,
		now:       now,
		stopChan:  make(chan struct{}),
	}
}

// Start opens today's file and starts the rotation timer
func (s *Storage) Start() error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s.mu.Lock()
	err := s.openFile(s.now().UTC().Format(dayLayout))
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (s *Storage) Stop() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// Record appends one timestamped wire line to the current file
func (s *Storage) Record(dir Direction, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if err := s.rotateIfNeeded(now.Format(dayLayout)); err != nil {
		return err
	}

	buf := make([]byte, 0, len(line)+40)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, ' ', byte(dir), ' ')
	buf = append(buf, line...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		buf = append(buf, '\n')
	}

	_, err := s.file.Write(buf)
	return err
}

// Path returns the file path used for the given day
func (s *Storage) Path(day time.Time) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("wire_%s.log", day.UTC().Format(dayLayout)))
}

// rotationTimer rotates at midnight UTC so idle days are compressed too
func (s *Storage) rotationTimer() {
	defer s.wg.Done()

	for {
		now := s.now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

		timer := time.NewTimer(nextMidnight.Sub(now))
		select {
		case <-timer.C:
			s.mu.Lock()
			err := s.rotateIfNeeded(s.now().UTC().Format(dayLayout))
			s.mu.Unlock()
			if err != nil {
				log.Printf("Error during wire log rotation: %v", err)
			}
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// rotateIfNeeded switches to the file of day, compressing the previous one. Caller holds mu.
func (s *Storage) rotateIfNeeded(day string) error {
	if s.file != nil && s.day == day {
		return nil
	}

	if s.file != nil {
		previous := s.file.Name()
		if err := s.file.Close(); err != nil {
			log.Printf("Warning: failed to close %s: %v", previous, err)
		}
		s.file = nil
		if err := s.compressFile(previous); err != nil {
			log.Printf("Warning: failed to compress %s: %v", previous, err)
		}
	}

	return s.openFile(day)
}

// compressFile gzips path to path.gz and removes the original
func (s *Storage) compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close()
		target.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		target.Close()
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// openFile opens the append-only file of day. Caller holds mu.
func (s *Storage) openFile(day string) error {
	filename := filepath.Join(s.outputDir, fmt.Sprintf("wire_%s.log", day))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create wire log file: %w", err)
	}

	s.file = file
	s.day = day
	return nil
}
