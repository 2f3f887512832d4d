package adjust

import "sync"

// StudentLocks guards against overlapping adjustments for one student.
// It never blocks: a second caller gets ok == false and should retry
// later.
type StudentLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewStudentLocks() *StudentLocks {
	return &StudentLocks{held: make(map[string]struct{})}
}

// TryLock claims the student. release must be called exactly once when
// ok is true.
func (l *StudentLocks) TryLock(studentID string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[studentID]; busy {
		return nil, false
	}
	l.held[studentID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, studentID)
			l.mu.Unlock()
		})
	}, true
}
