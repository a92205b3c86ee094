package safe_close

import "sync"

// SafeClose coordinates the shutdown of a service and the goroutines it owns.
//
//  1. The service goroutine waits on ReceiveCloseSignal and calls Done before it returns.
//  2. Every sub goroutine is started with Attach and returns once the close signal fires.
//  3. Any goroutine may call SendCloseSignal with a fatal error to stop the service.
//     CloseWait must not be called from an attached goroutine, it would deadlock.
//  4. Anyone outside the service calls CloseWait to stop it and wait.
type SafeClose struct {
	m           sync.Mutex
	wg          sync.WaitGroup
	closeSignal chan struct{}
	done        chan struct{}
	doneOnce    sync.Once
	closeErr    error
}

func NewSafeClose() *SafeClose {
	return &SafeClose{
		closeSignal: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// CloseWait sends the close signal, then waits for Done and for every
// attached goroutine. It may be called many times.
func (s *SafeClose) CloseWait() {
	s.SendCloseSignal(nil)
	s.wg.Wait()
	<-s.done
}

// SendCloseSignal fires the close signal. Only the first non-nil err of the
// first call is kept.
func (s *SafeClose) SendCloseSignal(err error) {
	s.m.Lock()
	defer s.m.Unlock()

	select {
	case <-s.closeSignal:
	default:
		s.closeErr = err
		close(s.closeSignal)
	}
}

// Err returns the error the service was closed with.
func (s *SafeClose) Err() error {
	s.m.Lock()
	defer s.m.Unlock()
	return s.closeErr
}

func (s *SafeClose) ReceiveCloseSignal() <-chan struct{} {
	return s.closeSignal
}

// Closed reports whether the close signal has fired.
func (s *SafeClose) Closed() bool {
	select {
	case <-s.closeSignal:
		return true
	default:
		return false
	}
}

// Attach runs f in a new goroutine tracked by CloseWait. f returns once
// closeSignal is closed. Nothing runs if s is already closed.
func (s *SafeClose) Attach(f func(closeSignal <-chan struct{})) {
	s.m.Lock()
	select {
	case <-s.closeSignal:
		s.m.Unlock()
		return
	default:
		s.wg.Add(1)
	}
	s.m.Unlock()

	go func() {
		defer s.wg.Done()
		f(s.closeSignal)
	}()
}

// Done tells CloseWait that the service goroutine has finished.
func (s *SafeClose) Done() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
