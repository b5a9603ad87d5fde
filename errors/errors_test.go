package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_New_Success(t *testing.T) {
	err := New(ErrCodeInvalidExport, "bad export")
	if err.Code != ErrCodeInvalidExport {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidExport, err.Code)
	}
	if err.Message != "bad export" {
		t.Errorf("expected message 'bad export', got %q", err.Message)
	}
	if err.Error() != "INVALID_EXPORT: bad export" {
		t.Errorf("unexpected Error() output %q", err.Error())
	}
}

func TestError_MissingDependency_Chain(t *testing.T) {
	chain := Chain{{Type: "*app.Service", Member: "param[0]"}, {Type: "app.Repo"}}
	err := MissingDependency("app.Repo", chain)
	if err.Code != ErrCodeMissingDependency {
		t.Errorf("expected MISSING_DEPENDENCY, got %s", err.Code)
	}
	if err.Details["type"] != "app.Repo" {
		t.Errorf("expected type=app.Repo, got %v", err.Details["type"])
	}
	want := "*app.Service.param[0] -> app.Repo"
	if got := err.Chain.String(); got != want {
		t.Errorf("chain = %q, want %q", got, want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected Error() to contain chain, got %q", err.Error())
	}
}

func TestError_ConstructionFailed_Unwrap(t *testing.T) {
	cause := fmt.Errorf("db unreachable")
	err := ConstructionFailed("*app.DB", nil, cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "cause: db unreachable") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestError_WithDetails(t *testing.T) {
	err := InvalidConfig("bad").WithDetail("field", "max_resolve_depth").WithDetails(map[string]any{"value": -1})
	if err.Details["field"] != "max_resolve_depth" || err.Details["value"] != -1 {
		t.Errorf("unexpected details %v", err.Details)
	}
}

func TestChain_Append_DoesNotAlias(t *testing.T) {
	base := make(Chain, 1, 4)
	base[0] = Frame{Type: "A"}
	left := base.Append(Frame{Type: "B"})
	right := base.Append(Frame{Type: "C"})
	if left[1].Type != "B" || right[1].Type != "C" {
		t.Errorf("appends aliased: left=%v right=%v", left, right)
	}
	if len(base) != 1 {
		t.Errorf("base mutated: %v", base)
	}
}

func TestIs_WrappedError(t *testing.T) {
	inner := RecursionTooDeep(100, nil)
	wrapped := fmt.Errorf("resolve: %w", inner)
	if !Is(wrapped, ErrCodeRecursionTooDeep) {
		t.Error("expected Is to match wrapped code")
	}
	if Is(wrapped, ErrCodeMissingDependency) {
		t.Error("expected Is to reject other codes")
	}
	if CodeOf(wrapped) != ErrCodeRecursionTooDeep {
		t.Errorf("CodeOf = %s", CodeOf(wrapped))
	}
	if CodeOf(stderrors.New("plain")) != "" {
		t.Error("expected empty code for plain errors")
	}
}

func TestChainOf(t *testing.T) {
	chain := Chain{{Type: "A"}}
	if got := ChainOf(NamedScopeNotFound("request", chain)); len(got) != 1 || got[0].Type != "A" {
		t.Errorf("ChainOf = %v", got)
	}
	if ChainOf(stderrors.New("plain")) != nil {
		t.Error("expected nil chain for plain errors")
	}
}

func TestIsBuildTimeCode(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeMissingDependency, true},
		{ErrCodeAmbiguousExport, true},
		{ErrCodeRecursionTooDeep, true},
		{ErrCodeGenericConstraintUnsatisfied, true},
		{ErrCodeNamedScopeNotFound, false},
		{ErrCodeConstructionFailed, false},
		{ErrCodeScopeDisposed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := IsBuildTimeCode(tt.code); got != tt.want {
				t.Errorf("IsBuildTimeCode(%s) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestDisposalFailed_JoinsCauses(t *testing.T) {
	a, b := stderrors.New("a"), stderrors.New("b")
	err := DisposalFailed(2, Join(a, b))
	if !stderrors.Is(err, a) || !stderrors.Is(err, b) {
		t.Error("expected both causes reachable")
	}
	if err.Details["failed"] != 2 {
		t.Errorf("failed = %v", err.Details["failed"])
	}
}
