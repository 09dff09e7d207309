package worker

// WorkerStatus is a point-in-time view of one supervised worker.
type WorkerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Status returns the state of every registered worker in registration order.
func (r *WorkerSupervisor) Status() []WorkerStatus {
	out := make([]WorkerStatus, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, WorkerStatus{
			Name:  w.Name(),
			State: w.State().String(),
		})
	}
	return out
}

// IsHealthy returns true if no worker has failed.
func (r *WorkerSupervisor) IsHealthy() bool {
	for _, w := range r.workers {
		if w.State() == StateFailed {
			return false
		}
	}
	return true
}
