package metrics

// MultiObserver fans one event out to several observers in order.
type MultiObserver struct {
	observers []Observer
}

func NewMultiObserver(observers ...Observer) *MultiObserver {
	out := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return &MultiObserver{observers: out}
}

func (m *MultiObserver) RecordEvent(ev Event) {
	for _, o := range m.observers {
		o.RecordEvent(ev)
	}
}

func (m *MultiObserver) Flush() error {
	var firstErr error
	for _, o := range m.observers {
		if f, ok := o.(Flusher); ok {
			if err := f.Flush(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
