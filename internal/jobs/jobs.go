// Package jobs tracks background dataset builds: status, progress and a
// log visible to the uploader.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mapa-rutas/internal/models"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// subscriberBuffer is the per-subscriber line buffer. Lines are dropped for
// subscribers that fall this far behind.
const subscriberBuffer = 64

type Result struct {
	Source      string            `json:"source"`
	Records     int               `json:"records"`
	Technicians int               `json:"technicians"`
	Stats       models.BuildStats `json:"stats"`
}

type Job struct {
	ID        string
	Session   string
	CreatedAt time.Time

	mu       sync.RWMutex
	status   Status
	logs     []string
	progress int // 0-100
	result   *Result
	err      string
	subs     map[chan string]struct{}
	done     chan struct{}
}

func newJob(session string) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Session:   session,
		CreatedAt: time.Now(),
		status:    StatusRunning,
		logs:      []string{},
		subs:      make(map[chan string]struct{}),
		done:      make(chan struct{}),
	}
}

// appendLocked records a line and fans it out. Caller holds mu.
func (j *Job) appendLocked(line string) {
	j.logs = append(j.logs, line)
	for ch := range j.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

func stamp(msg string) string {
	return fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
}

func (j *Job) Log(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendLocked(stamp(msg))
}

func (j *Job) SetProgress(current, total int, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if total > 0 {
		j.progress = int(float64(current) / float64(total) * 100)
	}
	if msg != "" {
		j.appendLocked(stamp(msg))
	}
}

func (j *Job) finish(res *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return
	}
	j.appendLocked(stamp("Proceso completado."))
	j.status = StatusDone
	j.result = res
	j.progress = 100
	j.closeLocked()
}

func (j *Job) fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return
	}
	j.appendLocked("[ERROR] " + msg)
	j.status = StatusError
	j.err = msg
	j.closeLocked()
}

func (j *Job) closeLocked() {
	for ch := range j.subs {
		close(ch)
	}
	j.subs = nil
	close(j.done)
}

// Done is closed once the job has finished or failed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot is a point-in-time copy of a job, safe to serialize.
type Snapshot struct {
	ID       string   `json:"id"`
	Status   Status   `json:"status"`
	Progress int      `json:"progress"`
	Logs     []string `json:"logs"`
	Result   *Result  `json:"result,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.logs))
	copy(logs, j.logs)
	return Snapshot{
		ID:       j.ID,
		Status:   j.status,
		Progress: j.progress,
		Logs:     logs,
		Result:   j.result,
		Error:    j.err,
	}
}

// Subscribe returns the lines logged so far and a channel carrying later
// ones. The channel is closed when the job ends or cancel is called.
func (j *Job) Subscribe() (backlog []string, lines <-chan string, cancel func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	backlog = make([]string, len(j.logs))
	copy(backlog, j.logs)

	ch := make(chan string, subscriberBuffer)
	if j.status != StatusRunning {
		close(ch)
		return backlog, ch, func() {}
	}
	j.subs[ch] = struct{}{}

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if _, ok := j.subs[ch]; ok {
				delete(j.subs, ch)
				close(ch)
			}
		})
	}
	return backlog, ch, cancel
}

// Func does the work of a job. Its result or error ends the job.
type Func func(j *Job) (*Result, error)

type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

func (s *Store) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

// Start registers a job for session and runs fn in its own goroutine.
// A panic inside fn fails the job.
func (s *Store) Start(session string, fn Func) *Job {
	job := newJob(session)
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go run(job, fn)
	return job
}

func run(job *Job, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			job.fail(fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := fn(job)
	if err != nil {
		job.fail(err.Error())
		return
	}
	job.finish(res)
}

// Prune forgets finished jobs older than ttl and returns how many it removed.
func (s *Store) Prune(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		select {
		case <-job.done:
		default:
			continue
		}
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}
