package writer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/sourcegen/model"
)

// ErrDuplicateType is reported for a top-level type whose binary name was
// already declared earlier in the same batch.
var ErrDuplicateType = errors.New("duplicate type in batch")

// Outcome is the result of one top-level type of a batch.
type Outcome struct {
	Type  string
	Paths []string // artifacts handed to the sink
	Err   error
}

// Report summarizes a batch. Outcomes follow the input order.
type Report struct {
	RunID    string
	Outcomes []Outcome
}

// Err joins the errors of every failed type, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Failed returns the outcomes of types that were not written.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Written returns the number of artifacts handed to the sink.
func (r *Report) Written() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Paths)
	}
	return n
}

// WriteAll generates every declaration concurrently and writes the
// artifacts of each successful unit to sink. A failing type never affects
// its siblings; its error is recorded in the report.
func (w *Writer) WriteAll(decls []*model.TypeDecl, sink Sink) *Report {
	r := &Report{RunID: uuid.NewString(), Outcomes: make([]Outcome, len(decls))}
	if rs, ok := sink.(interface{ SetRunID(string) }); ok {
		rs.SetRunID(r.RunID)
	}
	w.log.Infof("run %s: generating %d types", r.RunID, len(decls))

	seen := make(map[string]bool)
	var unique []*model.TypeDecl
	for i, d := range decls {
		r.Outcomes[i].Type = d.Name()
		if seen[d.Name()] {
			r.Outcomes[i].Err = fmt.Errorf("%w: %s", ErrDuplicateType, d.Name())
			continue
		}
		seen[d.Name()] = true
		unique = append(unique, d)
	}
	b := newBatch(unique)

	var g errgroup.Group
	g.SetLimit(max(w.workers, 1))
	for i, d := range decls {
		if r.Outcomes[i].Err != nil {
			continue
		}
		g.Go(func() error {
			r.Outcomes[i] = w.writeUnit(d, b, sink, r.RunID)
			return nil
		})
	}
	_ = g.Wait()

	if failed := len(r.Failed()); failed > 0 {
		w.log.Errorf("run %s: %d of %d types failed", r.RunID, failed, len(decls))
	} else {
		w.log.Infof("run %s: wrote %d artifacts", r.RunID, r.Written())
	}
	return r
}

func (w *Writer) writeUnit(d *model.TypeDecl, b *batch, sink Sink, runID string) Outcome {
	out := Outcome{Type: d.Name()}
	artifacts, err := w.generate(d, b)
	if err != nil {
		w.log.Errorf("run %s: %v", runID, err)
		out.Err = err
		return out
	}
	paths, err := writeArtifacts(sink, artifacts)
	out.Paths = paths
	if err != nil {
		w.log.Errorf("run %s: %s: %v", runID, d.Name(), err)
		out.Err = fmt.Errorf("%s: %w", d.Name(), err)
		return out
	}
	w.log.Debugf("run %s: %s done", runID, d.Name())
	return out
}
