package repo

import (
	"context"
	"errors"
	"testing"
)

type box struct {
	version int
	value   string
}

func TestCompareAndSwap_SucceedsFirstTry(t *testing.T) {
	loads := 0
	got, err := CompareAndSwap(context.Background(), 1,
		func(context.Context) (*box, error) { loads++; return &box{}, nil },
		func(b *box) error { b.value = "x"; return nil },
		func(context.Context, *box) error { return nil },
	)
	if err != nil || got.value != "x" || loads != 1 {
		t.Fatalf("got=%+v err=%v loads=%d", got, err, loads)
	}
}

func TestCompareAndSwap_RetriesOnceAfterConflict(t *testing.T) {
	loads, saves := 0, 0
	got, err := CompareAndSwap(context.Background(), 1,
		func(context.Context) (*box, error) { loads++; return &box{version: loads}, nil },
		func(b *box) error { b.value = "x"; return nil },
		func(_ context.Context, b *box) error {
			saves++
			if saves == 1 {
				return ErrConflict
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loads != 2 || saves != 2 || got.version != 2 {
		t.Fatalf("loads=%d saves=%d version=%d", loads, saves, got.version)
	}
}

func TestCompareAndSwap_SecondConflictIsFatal(t *testing.T) {
	saves := 0
	_, err := CompareAndSwap(context.Background(), 1,
		func(context.Context) (*box, error) { return &box{}, nil },
		func(*box) error { return nil },
		func(context.Context, *box) error { saves++; return ErrConflict },
	)
	if !errors.Is(err, ErrConflict) || saves != 2 {
		t.Fatalf("err=%v saves=%d", err, saves)
	}
}

func TestCompareAndSwap_LoadAndMutateErrorsAbort(t *testing.T) {
	boom := errors.New("boom")
	if _, err := CompareAndSwap(context.Background(), 3,
		func(context.Context) (*box, error) { return nil, boom },
		func(*box) error { t.Fatal("mutate must not run"); return nil },
		func(context.Context, *box) error { t.Fatal("save must not run"); return nil },
	); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}

	stop := errors.New("stop")
	v, err := CompareAndSwap(context.Background(), 3,
		func(context.Context) (*box, error) { return &box{value: "loaded"}, nil },
		func(*box) error { return stop },
		func(context.Context, *box) error { t.Fatal("save must not run"); return nil },
	)
	if !errors.Is(err, stop) || v == nil || v.value != "loaded" {
		t.Fatalf("expected mutate error with loaded value, got %v %+v", err, v)
	}
}
