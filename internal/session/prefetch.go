package session

// Prefetch is a question being generated ahead of time.
type Prefetch struct {
	done chan struct{}
	text string
	err  error
}

// Ready returns the generated text without blocking. ok is false while the
// generation is still running or when it failed.
func (p *Prefetch) Ready() (text string, ok bool) {
	select {
	case <-p.done:
		return p.text, p.err == nil && p.text != ""
	default:
		return "", false
	}
}

// Wait blocks until generation finishes.
func (p *Prefetch) Wait() (string, error) {
	<-p.done
	return p.text, p.err
}

// StartPrefetch runs generate in the background for question number n. It is
// a no-op when a prefetch for n already exists.
func (s *State) StartPrefetch(n int, generate func() (string, error)) bool {
	s.mu.Lock()
	if _, ok := s.prefetch[n]; ok {
		s.mu.Unlock()
		return false
	}
	p := &Prefetch{done: make(chan struct{})}
	s.prefetch[n] = p
	s.mu.Unlock()

	go func() {
		defer close(p.done)
		p.text, p.err = generate()
	}()
	return true
}

// TakePrefetch returns a finished prefetch for n and forgets it. It never
// waits for one still in progress.
func (s *State) TakePrefetch(n int) (string, bool) {
	s.mu.Lock()
	p, ok := s.prefetch[n]
	s.mu.Unlock()
	if !ok {
		return "", false
	}

	text, ready := p.Ready()
	if !ready {
		return "", false
	}

	s.mu.Lock()
	delete(s.prefetch, n)
	s.mu.Unlock()
	return text, true
}

// PendingPrefetch returns the prefetch for n, if one was started.
func (s *State) PendingPrefetch(n int) (*Prefetch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefetch[n]
	return p, ok
}
