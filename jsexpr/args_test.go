package jsexpr_test

import (
	"reflect"
	"testing"

	"github.com/cjh980402/kakao-link/jsexpr"
)

func TestStringArgs_SingleCall(t *testing.T) {
	args, err := jsexpr.StringArgs("init('csrf-123', 'ko')")
	if err != nil {
		t.Fatalf("StringArgs error: %v", err)
	}
	if want := []string{"csrf-123", "ko"}; !reflect.DeepEqual(args, want) {
		t.Errorf("got %v, want %v", args, want)
	}
}

func TestStringArgs_MethodAndSequence(t *testing.T) {
	args, err := jsexpr.StringArgs("vm.init('tok', 3); vm.ready = load('x')")
	if err != nil {
		t.Fatalf("StringArgs error: %v", err)
	}
	if want := []string{"tok", "x"}; !reflect.DeepEqual(args, want) {
		t.Errorf("got %v, want %v", args, want)
	}
}

func TestStringArgs_ParseError(t *testing.T) {
	if _, err := jsexpr.StringArgs("init('unterminated"); err == nil {
		t.Error("expected parse error")
	}
}

func TestFirstQuoted(t *testing.T) {
	if got, ok := jsexpr.FirstQuoted("x = 'abc' + 'def'"); !ok || got != "abc" {
		t.Errorf("got (%q, %v), want abc", got, ok)
	}
	if _, ok := jsexpr.FirstQuoted("no quotes here"); ok {
		t.Error("expected no match without quotes")
	}
	if _, ok := jsexpr.FirstQuoted("init('')"); ok {
		t.Error("empty quoted value should not match")
	}
	if got, ok := jsexpr.FirstQuoted("init('open-ended"); !ok || got != "open-ended" {
		t.Errorf("unterminated: got (%q, %v), want open-ended", got, ok)
	}
}

func TestSingleQuotedArgs(t *testing.T) {
	args, err := jsexpr.SingleQuotedArgs(`init("dq", 'sq', "dq2", 'sq2')`)
	if err != nil {
		t.Fatalf("SingleQuotedArgs error: %v", err)
	}
	if want := []string{"sq", "sq2"}; !reflect.DeepEqual(args, want) {
		t.Errorf("got %v, want %v", args, want)
	}
}

func TestFirstStringArg_Fallback(t *testing.T) {
	// Not valid JavaScript, but the quote split still finds the token.
	got, ok := jsexpr.FirstStringArg("init('tok-9' ;; ))")
	if !ok || got != "tok-9" {
		t.Errorf("got (%q, %v), want tok-9", got, ok)
	}
}

func TestFirstStringArg_SkipsDoubleQuoted(t *testing.T) {
	got, ok := jsexpr.FirstStringArg(`init("dq", 'sq')`)
	if !ok || got != "sq" {
		t.Errorf("got (%q, %v), want sq", got, ok)
	}
	if got, ok := jsexpr.FirstStringArg(`init("dq-only")`); ok {
		t.Errorf("double-quoted only: got %q, want no token", got)
	}
}

func TestFirstStringArg_Unterminated(t *testing.T) {
	got, ok := jsexpr.FirstStringArg("init('tail")
	if !ok || got != "tail" {
		t.Errorf("got (%q, %v), want tail", got, ok)
	}
}
