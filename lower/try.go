package lower

import (
	"fmt"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

// ---------------------------------------------------------------------------
// Protected blocks
// ---------------------------------------------------------------------------

// lowerTry lays out the body, then one handler per catch clause, then the
// catch-any handler of the finally block. Catch clauses protect the body
// only; the finally block protects the body and the catch clauses. Every
// normal or abrupt exit inlines the finally block.
func (mc *MethodContext) lowerTry(t model.Try) error {
	if len(mc.yields) > 0 {
		return fmt.Errorf("%w: try inside a switch-expression block", ErrUnsupported)
	}
	if len(t.Catches) == 0 && t.Finally == nil {
		return mc.scoped(func() error { return mc.lowerStmt(t.Body) })
	}

	end := mc.NewLabel()
	var fin *region
	if t.Finally != nil {
		fin = mc.openRegion(func() error {
			return mc.scoped(func() error { return mc.lowerStmt(t.Finally) })
		})
	}

	body := mc.openRegion(nil)
	if err := mc.scoped(func() error { return mc.lowerStmt(t.Body) }); err != nil {
		return err
	}
	mc.closeRegion(body)
	if err := mc.completeTry(fin, end); err != nil {
		return err
	}

	if body.covers(mc.code) {
		for _, c := range t.Catches {
			if err := mc.lowerCatch(c, body, fin, end); err != nil {
				return err
			}
		}
	}

	if fin != nil {
		mc.closeRegion(fin)
		if fin.covers(mc.code) {
			if err := mc.lowerFinallyHandler(t.Finally, fin); err != nil {
				return err
			}
		}
	}
	mc.label(end)
	return nil
}

func (mc *MethodContext) lowerCatch(c model.Catch, body, fin *region, end *classfile.Label) error {
	if mc.isInterface(c.Exception) {
		return fmt.Errorf("%w: catch of interface %s", ErrTypeMismatch, c.Exception)
	}
	handler := mc.NewLabel()
	catchType := mc.classRef(c.Exception)
	for _, s := range body.spans {
		mc.code.AddHandler(s.start, s.end, handler, catchType)
	}
	mc.code.Mark(handler)
	return mc.scoped(func() error {
		var (
			exc Local
			err error
		)
		if c.Name != "" {
			exc, err = mc.DeclareLocal(c.Name, c.Exception)
		} else {
			exc, err = mc.temp("exc", c.Exception)
		}
		if err != nil {
			return err
		}
		mc.store(exc)
		mc.catches = append(mc.catches, exc)
		err = mc.scoped(func() error { return mc.lowerStmt(c.Body) })
		mc.catches = mc.catches[:len(mc.catches)-1]
		if err != nil {
			return err
		}
		return mc.completeTry(fin, end)
	})
}

// completeTry leaves a try body or catch clause that completes normally:
// the finally block runs outside its own protection, then control skips the
// handlers.
func (mc *MethodContext) completeTry(fin *region, end *classfile.Label) error {
	if !mc.code.Reachable() {
		return nil
	}
	if fin != nil {
		open := mc.regions
		fin.pause(mc.code)
		mc.regions = open[:len(open)-1]
		err := fin.cleanup()
		mc.regions = open
		if err != nil {
			return err
		}
	}
	if mc.code.Reachable() {
		mc.code.EmitJump(classfile.OpGoto, end)
	}
	if fin != nil {
		fin.resume(mc.code)
	}
	return nil
}

// lowerFinallyHandler emits the catch-any handler: save the exception, run
// the finally block and rethrow.
func (mc *MethodContext) lowerFinallyHandler(finally model.Stmt, fin *region) error {
	handler := mc.NewLabel()
	for _, s := range fin.spans {
		mc.code.AddHandler(s.start, s.end, handler, 0)
	}
	mc.code.Mark(handler)
	return mc.scoped(func() error {
		exc, err := mc.temp("exc", model.TypeThrowable)
		if err != nil {
			return err
		}
		mc.store(exc)
		if err := mc.scoped(func() error { return mc.lowerStmt(finally) }); err != nil {
			return err
		}
		if mc.code.Reachable() {
			mc.load(exc)
			mc.code.Emit(classfile.OpAthrow)
		}
		return nil
	})
}

// lowerSynchronized holds the monitor for the body and releases it exactly
// once on every exit: inline on normal completion and on jumps out, and in
// a catch-any handler that rethrows.
func (mc *MethodContext) lowerSynchronized(s model.Synchronized) error {
	if len(mc.yields) > 0 {
		return fmt.Errorf("%w: synchronized inside a switch-expression block", ErrUnsupported)
	}
	return mc.scoped(func() error {
		if err := mc.lowerRef(s.Monitor); err != nil {
			return err
		}
		monitor, err := mc.temp("monitor", model.TypeObject)
		if err != nil {
			return err
		}
		mc.code.Emit(classfile.OpDup)
		mc.store(monitor)
		mc.code.Emit(classfile.OpMonitorenter)

		exit := func() {
			mc.load(monitor)
			mc.code.Emit(classfile.OpMonitorexit)
		}
		r := mc.openRegion(func() error {
			exit()
			return nil
		})
		if err := mc.scoped(func() error { return mc.lowerStmt(s.Body) }); err != nil {
			return err
		}
		mc.closeRegion(r)

		end := mc.NewLabel()
		if mc.code.Reachable() {
			exit()
			mc.code.EmitJump(classfile.OpGoto, end)
		}
		if r.covers(mc.code) {
			handler := mc.NewLabel()
			for _, sp := range r.spans {
				mc.code.AddHandler(sp.start, sp.end, handler, 0)
			}
			mc.code.Mark(handler)
			exc, err := mc.temp("exc", model.TypeThrowable)
			if err != nil {
				return err
			}
			mc.store(exc)
			exit()
			mc.load(exc)
			mc.code.Emit(classfile.OpAthrow)
		}
		mc.label(end)
		return nil
	})
}
