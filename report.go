package helios

import "github.com/canepat/helios/internal/worker"

// Counters is the release-ordered successful/failed read pair spec.md §3
// requires of every input worker.
type Counters = worker.Counters

// RateReport exposes one worker's observed read counts to a reporting
// collaborator, per spec.md §6's report_list.
type RateReport struct {
	Name     string
	counters *Counters
}

// Successful returns the worker's successful-read count.
func (r RateReport) Successful() int64 {
	s, _ := r.counters.Snapshot()
	return s
}

// Failed returns the worker's failed-read count.
func (r RateReport) Failed() int64 {
	_, f := r.counters.Snapshot()
	return f
}

// FailureRatio returns failed / (failed + successful), or 0 before any
// poll has occurred.
func (r RateReport) FailureRatio() float64 {
	return r.counters.FailureRatio()
}

// ServiceReport pairs one endpoint's ingress and egress counters, per
// spec.md §4.10's "each endpoint addition also records a ServiceReport".
type ServiceReport struct {
	Ingress RateReport
	Egress  RateReport
}

// NewServiceReport builds a ServiceReport for name. Per spec.md §8's S6, a
// nil ingress or egress counters reference fails immediately with a usage
// error rather than producing a half-built report.
func NewServiceReport(name string, ingress, egress *Counters) (*ServiceReport, error) {
	if ingress == nil || egress == nil {
		return nil, newError(ErrCodeUsage, "ServiceReport requires non-nil ingress and egress counters")
	}
	return &ServiceReport{
		Ingress: RateReport{Name: name + "-ingress", counters: ingress},
		Egress:  RateReport{Name: name + "-egress", counters: egress},
	}, nil
}
