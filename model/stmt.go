package model

// Stmt is an effect-only IR node.
type Stmt interface {
	isStmt()
}

// Return exits the method, or yields the arm value inside a YieldBlock.
// Value is nil for void returns.
type Return struct{ Value Expr }

// Throw raises Value, which must be a Throwable.
type Throw struct{ Value Expr }

// Assign stores Value into Target: a LocalVar, ParamRef, FieldRef,
// StaticFieldRef, ArrayElement, or a PropertyGet whose setter is called.
type Assign struct {
	Target Expr
	Value  Expr
}

// Define declares Var in the current scope and initializes it.
type Define struct {
	Var   LocalVar
	Value Expr
}

// If runs Then when Cond holds.
type If struct {
	Cond Expr
	Then Stmt
}

// IfElse runs Then or Else depending on Cond.
type IfElse struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

// While repeats Body while Cond holds.
type While struct {
	Cond Expr
	Body Stmt
}

// StmtCase is one arm of a switch statement. Keys are Constants or enum
// StaticFieldRefs. Arms do not fall through into each other.
type StmtCase struct {
	Keys []Expr
	Body Stmt
}

// Switch dispatches on Subject. Without a Default, unmatched subjects fall
// through past the switch.
type Switch struct {
	Subject Expr
	Cases   []StmtCase
	Default Stmt
}

// Synchronized runs Body while holding Monitor's lock.
type Synchronized struct {
	Monitor Expr
	Body    Stmt
}

// Catch handles exceptions assignable to Exception. When Name is set the
// exception is also bound as a local of that name.
type Catch struct {
	Exception ClassType
	Name      string
	Body      Stmt
}

// Try protects Body with catch clauses, tried in order, and an optional
// Finally that runs on every exit.
type Try struct {
	Body    Stmt
	Catches []Catch
	Finally Stmt
}

// Multi is a sequence of statements sharing the enclosing scope.
type Multi struct{ Stmts []Stmt }

// ExprStmt evaluates X for its effect and discards any result.
type ExprStmt struct{ X Expr }

func (Return) isStmt()       {}
func (Throw) isStmt()        {}
func (Assign) isStmt()       {}
func (Define) isStmt()       {}
func (If) isStmt()           {}
func (IfElse) isStmt()       {}
func (While) isStmt()        {}
func (Switch) isStmt()       {}
func (Synchronized) isStmt() {}
func (Try) isStmt()          {}
func (Multi) isStmt()        {}
func (ExprStmt) isStmt()     {}

// Block groups statements into a Multi.
func Block(stmts ...Stmt) Multi { return Multi{Stmts: stmts} }

// Do wraps an expression as a statement.
func Do(x Expr) ExprStmt { return ExprStmt{X: x} }

// Ret returns x.
func Ret(x Expr) Return { return Return{Value: x} }
