package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := &E{C: ModelLocked, Op: "load_model"}
	outer := &E{C: InitFailed, Op: "initialize", Err: inner}
	wrapped := fmt.Errorf("attach: %w", outer)

	if !errors.Is(wrapped, InitFailed) {
		t.Error("outer code not matched")
	}
	if !errors.Is(wrapped, ModelLocked) {
		t.Error("inner code not matched through unwrap chain")
	}
	if errors.Is(wrapped, NotReady) {
		t.Error("unrelated code matched")
	}
}

func TestOf(t *testing.T) {
	if Of(nil) != OK {
		t.Error("nil should map to OK")
	}
	if Of(NotReady) != NotReady {
		t.Error("bare code not extracted")
	}
	if Of(&E{C: TransportError, Op: "read_word"}) != TransportError {
		t.Error("wrapper code not extracted")
	}
	if Of(errors.New("plain")) != Error {
		t.Error("plain error should map to the generic code")
	}
}
