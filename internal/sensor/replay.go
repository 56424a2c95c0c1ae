package sensor

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ReplaySource plays back pre-recorded samples at the requested period.
// Timestamps are re-stamped from the monotonic clock on delivery.
type ReplaySource struct {
	samples []Sample
	loop    bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	onErr   ErrorHandler
}

// NewReplaySource creates a ReplaySource over samples. When loop is true
// playback restarts from the first sample after the last one.
func NewReplaySource(samples []Sample, loop bool) *ReplaySource {
	return &ReplaySource{
		samples: samples,
		loop:    loop,
	}
}

// LoadReplayFile reads samples from a text file with one "x,y,z" reading per
// line. Blank lines and lines starting with '#' are skipped.
func LoadReplayFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	var samples []Sample
	scan := bufio.NewScanner(f)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		samples = append(samples, s)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}

	return samples, nil
}

func (r *ReplaySource) Start(period time.Duration, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if len(r.samples) == 0 {
		return &RegistrationError{Source: "replay", Err: fmt.Errorf("no samples to replay")}
	}
	if period < MinPeriod {
		period = MinPeriod
	}

	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.running = true
	go r.play(period, h, r.stopCh, r.doneCh)

	return nil
}

func (r *ReplaySource) OnError(fn ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onErr = fn
}

func (r *ReplaySource) play(period time.Duration, h Handler, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	index := 0
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if index >= len(r.samples) {
				if !r.loop {
					r.finish(doneCh)
					return
				}
				index = 0
			}
			s := r.samples[index]
			s.Timestamp = NowMillis()
			index++
			h(s)
		}
	}
}

// finish marks a played-out session stopped and reports ErrStreamEnded.
func (r *ReplaySource) finish(doneCh chan struct{}) {
	r.mu.Lock()
	if !r.running || r.doneCh != doneCh {
		r.mu.Unlock()
		return
	}
	r.running = false
	onErr := r.onErr
	r.mu.Unlock()

	if onErr != nil {
		onErr(fmt.Errorf("replay: %w", ErrStreamEnded))
	}
}

func (r *ReplaySource) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	close(r.stopCh)
	doneCh := r.doneCh
	r.running = false
	r.mu.Unlock()

	<-doneCh
	return nil
}

func (r *ReplaySource) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
